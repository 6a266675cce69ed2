package ycc

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/metrics"
	"github.com/bodgit/ycc/raster"
	_ "github.com/mattn/go-sqlite3"
)

// ReportDB is an SQLite database of encoded images and the measurements of
// every encode run.
type ReportDB struct {
	db *sql.DB
}

// NewReportDB opens or creates the database at file.
func NewReportDB(file string) (*ReportDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL UNIQUE, name TEXT NOT NULL, height INTEGER NOT NULL, width INTEGER NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS run (id INTEGER PRIMARY KEY NOT NULL, image_id INTEGER NOT NULL, time INTEGER NOT NULL, elapsed INTEGER NOT NULL, destination TEXT NOT NULL, format TEXT NOT NULL, y_modulus INTEGER NOT NULL, cb_modulus INTEGER NOT NULL, cr_modulus INTEGER NOT NULL, rounding TEXT NOT NULL, raw_size INTEGER NOT NULL, compressed_size INTEGER NOT NULL, y_runs INTEGER NOT NULL, cb_runs INTEGER NOT NULL, cr_runs INTEGER NOT NULL, psnr REAL, ssim REAL NOT NULL, delta_e REAL NOT NULL, entropy REAL NOT NULL, y_entropy REAL NOT NULL, cb_entropy REAL NOT NULL, cr_entropy REAL NOT NULL, FOREIGN KEY(image_id) REFERENCES image(id))"); err != nil {
		db.Close()
		return nil, err
	}

	return &ReportDB{
		db: db,
	}, nil
}

// Close closes the database.
func (db *ReportDB) Close() error {
	return db.db.Close()
}

func (db *ReportDB) addImage(sha, name string, shape raster.Shape) (int64, error) {
	var id int64
	switch err := db.db.QueryRow("SELECT id FROM image WHERE sha1 = ?", sha).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := db.db.Exec("INSERT INTO image (sha1, name, height, width) VALUES (?, ?, ?, ?)", sha, name, shape.Height, shape.Width)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

// Record stores r, adding its source image if it has not been seen before.
func (db *ReportDB) Record(r *Result) error {
	if r.Report == nil {
		return fmt.Errorf("no report for %s", r.Source)
	}

	image, err := db.addImage(r.SHA1, r.Source, r.Report.Shape)
	if err != nil {
		return err
	}

	// SQLite has no portable infinity so a lossless encode is stored as NULL
	var psnr sql.NullFloat64
	if !math.IsInf(r.Report.PSNR, 0) {
		psnr.Float64 = r.Report.PSNR
		psnr.Valid = true
	}

	rep := r.Report
	if _, err := db.db.Exec("INSERT INTO run (image_id, time, elapsed, destination, format, y_modulus, cb_modulus, cr_modulus, rounding, raw_size, compressed_size, y_runs, cb_runs, cr_runs, psnr, ssim, delta_e, entropy, y_entropy, cb_entropy, cr_entropy) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		image, r.Time.UnixNano(), int64(r.Elapsed), r.Destination, r.Format.String(),
		r.Moduli.Y, r.Moduli.Cb, r.Moduli.Cr, r.Rounding.String(),
		rep.RawSize, rep.CompressedSize,
		rep.Runs[raster.Y], rep.Runs[raster.Cb], rep.Runs[raster.Cr],
		psnr, rep.SSIM, rep.DeltaE, rep.EntropyRGB,
		rep.Entropy[raster.Y], rep.Entropy[raster.Cb], rep.Entropy[raster.Cr]); err != nil {
		return err
	}

	return nil
}

const selectRuns = "SELECT i.sha1, i.name, i.height, i.width, r.time, r.elapsed, r.destination, r.format, r.y_modulus, r.cb_modulus, r.cr_modulus, r.rounding, r.raw_size, r.compressed_size, r.y_runs, r.cb_runs, r.cr_runs, r.psnr, r.ssim, r.delta_e, r.entropy, r.y_entropy, r.cb_entropy, r.cr_entropy FROM run AS r JOIN image AS i ON r.image_id = i.id"

func (db *ReportDB) query(query string, args ...interface{}) ([]*Result, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		var rep metrics.Report
		var when, elapsed int64
		var format, rounding string
		var yRuns, cbRuns, crRuns int
		var psnr sql.NullFloat64
		var yEntropy, cbEntropy, crEntropy float64
		if err := rows.Scan(&r.SHA1, &r.Source, &rep.Shape.Height, &rep.Shape.Width,
			&when, &elapsed, &r.Destination, &format,
			&r.Moduli.Y, &r.Moduli.Cb, &r.Moduli.Cr, &rounding,
			&rep.RawSize, &rep.CompressedSize, &yRuns, &cbRuns, &crRuns,
			&psnr, &rep.SSIM, &rep.DeltaE, &rep.EntropyRGB,
			&yEntropy, &cbEntropy, &crEntropy); err != nil {
			return nil, err
		}

		if r.Format, err = container.ParseFormat(format); err != nil {
			return nil, err
		}
		if r.Rounding, err = colorspace.ParseRounding(rounding); err != nil {
			return nil, err
		}

		r.Time = time.Unix(0, when)
		r.Elapsed = time.Duration(elapsed)

		rep.PSNR = math.Inf(1)
		if psnr.Valid {
			rep.PSNR = psnr.Float64
		}
		rep.Runs = map[string]int{raster.Y: yRuns, raster.Cb: cbRuns, raster.Cr: crRuns}
		rep.Entropy = map[string]float64{raster.Y: yEntropy, raster.Cb: cbEntropy, raster.Cr: crEntropy}
		r.Report = &rep

		results = append(results, &r)
	}
	return results, rows.Err()
}

// History returns every encode run of the image with the given SHA-1, oldest
// first.
func (db *ReportDB) History(sha string) ([]*Result, error) {
	return db.query(selectRuns+" WHERE i.sha1 = ? ORDER BY r.id", sha)
}

// List returns every encode run, oldest first.
func (db *ReportDB) List() ([]*Result, error) {
	return db.query(selectRuns + " ORDER BY r.id")
}
