package recorder

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	latitude REAL,
	longitude REAL,
	speed_mps REAL,
	course_deg REAL,
	acc_x INTEGER NOT NULL,
	acc_y INTEGER NOT NULL,
	acc_z INTEGER NOT NULL,
	gyro_x INTEGER NOT NULL,
	gyro_y INTEGER NOT NULL,
	gyro_z INTEGER NOT NULL,
	ml_pred TEXT,
	ml_p_walk REAL,
	ml_p_ebike REAL
);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp_ms);
`

const insertRecord = `INSERT INTO records (
	date, time, timestamp_ms, latitude, longitude, speed_mps, course_deg,
	acc_x, acc_y, acc_z, gyro_x, gyro_y, gyro_z, ml_pred, ml_p_walk, ml_p_ebike
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink stores rows in a SQLite database. Rows appended since the last
// Flush share one transaction, so Flush is the commit point and absent
// fields become NULL.
type SQLiteSink struct {
	path string
	db   *sql.DB
	tx   *sql.Tx
	ins  *sql.Stmt
}

func OpenSQLiteSink(dir string) (*SQLiteSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log dir %s", dir)
	}
	path := NextLogPath(dir, "db")
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "failed to initialize database"), db.Close())
	}
	return &SQLiteSink{path: path, db: db}, nil
}

func (s *SQLiteSink) Path() string {
	return s.path
}

func (s *SQLiteSink) AppendText(line string) error {
	rec, err := ParseRecord(line)
	if err != nil {
		return err
	}
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return errors.Wrap(err, "begin")
		}
		ins, err := tx.Prepare(insertRecord)
		if err != nil {
			return multierr.Combine(errors.Wrap(err, "prepare"), tx.Rollback())
		}
		s.tx, s.ins = tx, ins
	}

	var lat, lon, speed, course sql.NullFloat64
	if p := rec.Position; p != nil {
		lat = sql.NullFloat64{Float64: p.LatDeg, Valid: true}
		lon = sql.NullFloat64{Float64: p.LonDeg, Valid: true}
		speed = sql.NullFloat64{Float64: p.SpeedMps, Valid: true}
		course = sql.NullFloat64{Float64: p.CourseDeg, Valid: true}
	}
	var pred sql.NullString
	var pWalk, pEBike sql.NullFloat64
	if r := rec.Result; r != nil {
		pred = sql.NullString{String: r.Class.String(), Valid: true}
		pWalk = sql.NullFloat64{Float64: float64(r.Probs[0]), Valid: true}
		pEBike = sql.NullFloat64{Float64: float64(r.Probs[1]), Valid: true}
	}
	a := rec.Axes
	_, err = s.ins.Exec(rec.Date, rec.Time, rec.TimestampMS, lat, lon, speed, course,
		a.Ax, a.Ay, a.Az, a.Gx, a.Gy, a.Gz, pred, pWalk, pEBike)
	return errors.Wrap(err, "insert")
}

func (s *SQLiteSink) Flush() error {
	if s.tx == nil {
		return nil
	}
	err := multierr.Combine(s.ins.Close(), s.tx.Commit())
	s.tx, s.ins = nil, nil
	return errors.Wrap(err, "commit")
}

func (s *SQLiteSink) Sync() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(FULL)")
	return errors.Wrap(err, "checkpoint")
}

func (s *SQLiteSink) Close() error {
	return multierr.Combine(s.Flush(), s.db.Close())
}

// Count returns the number of committed rows.
func (s *SQLiteSink) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}
