package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/gasforecast/pkg/models"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Store is the durable, date-keyed collection of daily usage samples. One row
// per calendar date; a re-fetch that reports a corrected value for a date
// supersedes the stored row rather than duplicating it. Reads always return
// copies, so a diagnostics path can iterate a snapshot while an update cycle
// is merging new samples.
type Store struct {
	conn *sql.DB
}

// New creates a new store and initializes the schema
func New(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_history (
		date TEXT PRIMARY KEY,
		usage_ccf REAL NOT NULL,
		avg_temp_f REAL NOT NULL DEFAULT 0,
		min_temp_f REAL NOT NULL DEFAULT 0,
		max_temp_f REAL NOT NULL DEFAULT 0,
		anomaly INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_history_date ON usage_history(date);
	CREATE TABLE IF NOT EXISTS model_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		base_load REAL NOT NULL,
		heating_coeff REAL NOT NULL,
		balance_temp_f REAL NOT NULL,
		r_squared REAL NOT NULL,
		trained_at TEXT,
		sample_count INTEGER NOT NULL DEFAULT 0,
		is_default INTEGER NOT NULL DEFAULT 1,
		new_since_train INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Merge upserts a batch of samples in a single transaction and returns how
// many dates were new. The transaction keeps a crash mid-write from losing
// previously accepted samples.
func (s *Store) Merge(samples []models.UsageSample) (added int, err error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	upsert := `
	INSERT INTO usage_history (date, usage_ccf, avg_temp_f, min_temp_f, max_temp_f, anomaly, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		usage_ccf = excluded.usage_ccf,
		avg_temp_f = excluded.avg_temp_f,
		min_temp_f = excluded.min_temp_f,
		max_temp_f = excluded.max_temp_f,
		anomaly = excluded.anomaly,
		updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	for _, sample := range samples {
		dateStr := sample.Date.Format(dateLayout)

		var exists int
		if err = tx.QueryRow(`SELECT COUNT(1) FROM usage_history WHERE date = ?`, dateStr).Scan(&exists); err != nil {
			return 0, fmt.Errorf("checking existing sample: %w", err)
		}

		anomaly := 0
		if sample.Anomaly {
			anomaly = 1
		}
		if _, err = tx.Exec(upsert, dateStr, sample.UsageCCF, sample.AvgTempF, sample.MinTempF, sample.MaxTempF, anomaly, now); err != nil {
			return 0, fmt.Errorf("upserting sample for %s: %w", dateStr, err)
		}
		if exists == 0 {
			added++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing samples: %w", err)
	}
	return added, nil
}

// Window returns the samples from the most recent `days` calendar days,
// ordered by date. Older samples stay persisted but are excluded.
func (s *Store) Window(days int) ([]models.UsageSample, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format(dateLayout)

	rows, err := s.conn.Query(`
	SELECT date, usage_ccf, avg_temp_f, min_temp_f, max_temp_f, anomaly
	FROM usage_history
	WHERE date >= ?
	ORDER BY date ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying history window: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// All returns every stored sample ordered by date.
func (s *Store) All() ([]models.UsageSample, error) {
	rows, err := s.conn.Query(`
	SELECT date, usage_ccf, avg_temp_f, min_temp_f, max_temp_f, anomaly
	FROM usage_history
	ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Snapshot returns the full history as a date-keyed map copy, the shape
// consumers that treat the store as key-value storage expect.
func (s *Store) Snapshot() (map[string]models.UsageSample, error) {
	samples, err := s.All()
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]models.UsageSample, len(samples))
	for _, sample := range samples {
		snapshot[sample.Date.Format(dateLayout)] = sample
	}
	return snapshot, nil
}

// Restore merges a date-keyed map back into the store, for callers that
// loaded a snapshot, modified it, and want it persisted.
func (s *Store) Restore(snapshot map[string]models.UsageSample) error {
	samples := make([]models.UsageSample, 0, len(snapshot))
	for _, sample := range snapshot {
		samples = append(samples, sample)
	}
	_, err := s.Merge(samples)
	return err
}

// Count returns the number of stored samples.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(1) FROM usage_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return n, nil
}

// LatestDate returns the most recent sample date, zero when empty.
func (s *Store) LatestDate() (time.Time, error) {
	var dateStr sql.NullString
	err := s.conn.QueryRow(`SELECT MAX(date) FROM usage_history`).Scan(&dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest date: %w", err)
	}
	if !dateStr.Valid || dateStr.String == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(dateLayout, dateStr.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date: %w", err)
	}
	return t, nil
}

// SaveModel persists the current heating model and the count of samples
// accepted since the last successful full training, so a restart resumes
// from the trained state instead of regional defaults.
func (s *Store) SaveModel(m models.HeatingModel, newSinceTrain int) error {
	trainedAt := ""
	if !m.TrainedAt.IsZero() {
		trainedAt = m.TrainedAt.UTC().Format(time.RFC3339)
	}
	isDefault := 0
	if m.IsDefault {
		isDefault = 1
	}

	_, err := s.conn.Exec(`
	INSERT INTO model_state (id, base_load, heating_coeff, balance_temp_f, r_squared, trained_at, sample_count, is_default, new_since_train)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		base_load = excluded.base_load,
		heating_coeff = excluded.heating_coeff,
		balance_temp_f = excluded.balance_temp_f,
		r_squared = excluded.r_squared,
		trained_at = excluded.trained_at,
		sample_count = excluded.sample_count,
		is_default = excluded.is_default,
		new_since_train = excluded.new_since_train
	`, m.BaseLoad, m.HeatingCoeff, m.BalanceTempF, m.RSquared, trainedAt, m.SampleCount, isDefault, newSinceTrain)
	if err != nil {
		return fmt.Errorf("saving model state: %w", err)
	}
	return nil
}

// LoadModel returns the persisted heating model, reporting found=false when
// none has been saved yet.
func (s *Store) LoadModel() (m models.HeatingModel, newSinceTrain int, found bool, err error) {
	var trainedAt sql.NullString
	var isDefault int

	row := s.conn.QueryRow(`
	SELECT base_load, heating_coeff, balance_temp_f, r_squared, trained_at, sample_count, is_default, new_since_train
	FROM model_state WHERE id = 1
	`)
	err = row.Scan(&m.BaseLoad, &m.HeatingCoeff, &m.BalanceTempF, &m.RSquared, &trainedAt, &m.SampleCount, &isDefault, &newSinceTrain)
	if err == sql.ErrNoRows {
		return models.HeatingModel{}, 0, false, nil
	}
	if err != nil {
		return models.HeatingModel{}, 0, false, fmt.Errorf("loading model state: %w", err)
	}

	m.IsDefault = isDefault != 0
	if trainedAt.Valid && trainedAt.String != "" {
		t, perr := time.Parse(time.RFC3339, trainedAt.String)
		if perr != nil {
			return models.HeatingModel{}, 0, false, fmt.Errorf("parsing trained_at: %w", perr)
		}
		m.TrainedAt = t
	}

	return m, newSinceTrain, true, nil
}

func scanSamples(rows *sql.Rows) ([]models.UsageSample, error) {
	var results []models.UsageSample
	for rows.Next() {
		var sample models.UsageSample
		var dateStr string
		var anomaly int

		if err := rows.Scan(&dateStr, &sample.UsageCCF, &sample.AvgTempF, &sample.MinTempF, &sample.MaxTempF, &anomaly); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		sample.Date = date
		sample.Anomaly = anomaly != 0

		results = append(results, sample)
	}

	return results, rows.Err()
}
