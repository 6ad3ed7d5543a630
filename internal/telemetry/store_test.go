package telemetry

import (
	"sync"
	"testing"

	"go.viam.com/test"

	"joftmode/internal/gps"
	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

func TestStoreAbsentUntilSet(t *testing.T) {
	s := New()
	_, ok := s.LatestSample()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = s.LatestFix()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = s.LatestResult()
	test.That(t, ok, test.ShouldBeFalse)

	snap := s.Snapshot()
	test.That(t, snap.Sample, test.ShouldBeNil)
	test.That(t, snap.Fix, test.ShouldBeNil)
	test.That(t, snap.Result, test.ShouldBeNil)
}

func TestStoreChannelsIndependent(t *testing.T) {
	s := New()
	s.SetSample(imu.Sample{Axes: imu.Axes{Ax: 1}, TimestampUS: 40000})

	got, ok := s.LatestSample()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.TimestampUS, test.ShouldEqual, int64(40000))
	_, ok = s.LatestFix()
	test.That(t, ok, test.ShouldBeFalse)

	s.SetFix(gps.PositionFix{LatDeg: 48.1173, Valid: true})
	fix, ok := s.LatestFix()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, fix.LatDeg, test.ShouldEqual, 48.1173)

	s.SetResult(infer.Result{Class: infer.EBike, Probs: [infer.NumClasses]float32{0.1, 0.9}})
	snap := s.Snapshot()
	test.That(t, snap.Sample.Ax, test.ShouldEqual, int16(1))
	test.That(t, snap.Fix.Valid, test.ShouldBeTrue)
	test.That(t, snap.Result.Class, test.ShouldEqual, infer.EBike)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	s.SetResult(infer.Result{Class: infer.Walk, Probs: [infer.NumClasses]float32{0.8, 0.2}})
	snap := s.Snapshot()
	snap.Result.Class = infer.EBike
	r, _ := s.LatestResult()
	test.That(t, r.Class, test.ShouldEqual, infer.Walk)
}

// Writers store samples whose axes all equal the timestamp; a reader seeing
// mixed values would indicate a torn read.
func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				v := int16(i%1000 + w)
				s.SetSample(imu.Sample{Axes: imu.Axes{Ax: v, Ay: v, Az: v, Gx: v, Gy: v, Gz: v}, TimestampUS: int64(v)})
				s.SetFix(gps.PositionFix{LatDeg: float64(v), LonDeg: float64(v)})
			}
		}(w)
	}
	errs := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if smp, ok := s.LatestSample(); ok {
					a := smp.Axes
					if a.Ay != a.Ax || a.Az != a.Ax || a.Gx != a.Ax || a.Gy != a.Ax || a.Gz != a.Ax || smp.TimestampUS != int64(a.Ax) {
						errs <- "torn sample"
						return
					}
				}
				if fix, ok := s.LatestFix(); ok && fix.LatDeg != fix.LonDeg {
					errs <- "torn fix"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}
