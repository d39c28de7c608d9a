// Package loader reads recording sessions from disk. A session is a
// directory holding a meta.json plus one CSV per sensor and, for labeled
// trials, a moments CSV:
//
//	session-01/
//	    meta.json
//	    R_SHANK.csv
//	    R_THIGH.csv
//	    static_R_SHANK.csv   (optional, standing still, for calibration)
//	    moments.csv          (optional, lab reference moments)
//
// Sensor CSVs have a ts_nanos column followed by the six channel columns;
// moments CSVs have ts_nanos plus the two moment columns. meta.json names
// the sensors, their rates and units, and the subject anthropometrics.
package loader

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/stride-data/gaitmoment/internal/condition"
	"github.com/stride-data/gaitmoment/internal/imu"
)

// SensorMeta describes one sensor recording within a session.
type SensorMeta struct {
	Segment    string  `json:"segment"`
	File       string  `json:"file,omitempty"` // defaults to <segment>.csv
	RateHz     float64 `json:"rate_hz"`
	Unit       string  `json:"unit,omitempty"`
	StaticFile string  `json:"static_file,omitempty"`
}

// MomentsMeta describes the reference moment recording, when present.
type MomentsMeta struct {
	File   string  `json:"file"`
	RateHz float64 `json:"rate_hz"`
}

// Meta is the session metadata file layout.
type Meta struct {
	SessionID string       `json:"session_id,omitempty"` // defaults to the directory name
	SubjectID string       `json:"subject_id"`
	TrialID   string       `json:"trial_id"`
	Side      string       `json:"side"`
	WeightKG  float64      `json:"weight_kg"`
	HeightM   float64      `json:"height_m"`
	Sensors   []SensorMeta `json:"sensors"`
	Moments   *MomentsMeta `json:"moments,omitempty"`
}

// LoadSession reads one session directory. Static trials, when named in
// the metadata, are returned alongside so the caller can calibrate.
func LoadSession(dir string) (*imu.Session, map[string]*condition.Calibration, error) {
	metaPath := filepath.Join(dir, "meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", metaPath, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", metaPath, err)
	}
	if len(meta.Sensors) == 0 {
		return nil, nil, fmt.Errorf("%s names no sensors", metaPath)
	}
	if meta.SessionID == "" {
		meta.SessionID = filepath.Base(dir)
	}

	session := &imu.Session{
		SessionID:       meta.SessionID,
		SubjectID:       meta.SubjectID,
		TrialID:         meta.TrialID,
		Side:            meta.Side,
		SubjectWeightKG: meta.WeightKG,
		SubjectHeightM:  meta.HeightM,
	}

	calibrations := make(map[string]*condition.Calibration)
	for _, sensor := range meta.Sensors {
		file := sensor.File
		if file == "" {
			file = sensor.Segment + ".csv"
		}
		stream, err := readStream(filepath.Join(dir, file), sensor.Segment,
			imu.SensorChannels(sensor.Segment), sensor.RateHz, sensor.Unit)
		if err != nil {
			return nil, nil, err
		}
		session.Streams = append(session.Streams, stream)

		if sensor.StaticFile != "" {
			static, err := readStream(filepath.Join(dir, sensor.StaticFile), sensor.Segment,
				imu.SensorChannels(sensor.Segment), sensor.RateHz, sensor.Unit)
			if err != nil {
				return nil, nil, err
			}
			cal, err := condition.CalibrateFromStatic(static)
			if err != nil {
				return nil, nil, fmt.Errorf("session %s: %w", meta.SessionID, err)
			}
			calibrations[sensor.Segment] = cal
		}
	}

	if meta.Moments != nil {
		moments, err := readStream(filepath.Join(dir, meta.Moments.File), "moments",
			imu.MomentChannels, meta.Moments.RateHz, "")
		if err != nil {
			return nil, nil, err
		}
		session.Moments = moments
	}
	return session, calibrations, nil
}

// LoadSessions reads every session directory under root, in name order.
func LoadSessions(root string) ([]*imu.Session, map[string]*condition.Calibration, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	if len(dirs) == 0 {
		return nil, nil, fmt.Errorf("no session directories under %s", root)
	}

	var sessions []*imu.Session
	calibrations := make(map[string]*condition.Calibration)
	for _, name := range dirs {
		session, cals, err := LoadSession(filepath.Join(root, name))
		if err != nil {
			return nil, nil, err
		}
		sessions = append(sessions, session)
		// Later sessions may recalibrate a sensor; last one wins.
		for id, cal := range cals {
			calibrations[id] = cal
		}
	}
	return sessions, calibrations, nil
}

// readStream parses a timestamped CSV into a sensor stream. The header
// must be ts_nanos followed by the expected channel names, in order.
func readStream(path, sensorID string, channels []string, rateHz float64, unit string) (*imu.SensorStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) != len(channels)+1 || header[0] != "ts_nanos" {
		return nil, fmt.Errorf("%s: header must be ts_nanos,%v", path, channels)
	}
	for i, ch := range channels {
		if header[i+1] != ch {
			return nil, fmt.Errorf("%s: column %d is %q, want %q", path, i+1, header[i+1], ch)
		}
	}

	var samples []imu.Sample
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad timestamp: %w", path, line, err)
		}
		values := make([]float64, len(channels))
		for i := range channels {
			values[i], err = strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad %s: %w", path, line, channels[i], err)
			}
		}
		samples = append(samples, imu.Sample{TSNanos: ts, Values: values})
	}

	stream := &imu.SensorStream{
		SensorID:      sensorID,
		Channels:      channels,
		Unit:          unit,
		NominalRateHz: rateHz,
		Samples:       samples,
	}
	if err := stream.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stream, nil
}
