package etl

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"playlog/api/models"
)

// The raw per-date log files carry these column headers. Only the ones
// below survive projection into a canonical record; everything else
// (auth, method, page, registration, status, ts) is dropped.
var canonicalColumns = []string{
	"artist",
	"firstName",
	"gender",
	"itemInSession",
	"lastName",
	"length",
	"level",
	"location",
	"sessionId",
	"song",
	"userId",
}

// ArtifactHeader is the header row of the combined canonical record file.
var ArtifactHeader = []string{
	"artist", "first_name", "gender", "item_in_session", "last_name",
	"length", "level", "location", "session_id", "song", "user_id",
}

// Result is the output of one extraction pass.
type Result struct {
	Records   []models.PlayRecord
	Files     int
	RawRows   int
	Discarded int
}

// Extractor scans a directory tree of raw event-log CSV files and produces
// the canonical song-play record sequence. A row is a song play exactly
// when its artist field is non-empty; all other rows are discarded.
type Extractor struct {
	log  *slog.Logger
	root string
}

func NewExtractor(log *slog.Logger, root string) *Extractor {
	return &Extractor{log: log, root: root}
}

// Extract visits every log file under the root exactly once, in sorted
// path order so repeated runs over the same tree produce the same
// sequence. Any unreadable file or malformed row aborts the whole pass.
func (e *Extractor) Extract() (*Result, error) {
	files, err := e.listLogFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no event log files found under %s", e.root)
	}

	result := &Result{Files: len(files)}
	for _, path := range files {
		if err := e.extractFile(path, result); err != nil {
			return nil, err
		}
	}

	e.log.Info("extraction complete",
		"files", result.Files,
		"rawRows", result.RawRows,
		"records", len(result.Records),
		"discarded", result.Discarded,
	)
	return result, nil
}

func (e *Extractor) listLogFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate event logs under %s: %w", e.root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Extractor) extractFile(path string, result *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return fmt.Errorf("event log %s: %w", path, err)
	}

	line := 1
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("malformed row in %s: %w", path, err)
		}
		line++
		result.RawRows++

		// Empty artist marks a non-play event (login, page view, ...).
		// Dropping it is the designed cleaning rule, not an error.
		if row[index["artist"]] == "" {
			result.Discarded++
			continue
		}

		record, err := projectRow(row, index)
		if err != nil {
			return fmt.Errorf("malformed row at %s:%d: %w", path, line, err)
		}
		result.Records = append(result.Records, record)
	}
	return nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range canonicalColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q in header", name)
		}
	}
	return index, nil
}

func projectRow(row []string, index map[string]int) (models.PlayRecord, error) {
	itemInSession, err := parseInt32(row[index["itemInSession"]], "itemInSession")
	if err != nil {
		return models.PlayRecord{}, err
	}
	sessionID, err := parseInt32(row[index["sessionId"]], "sessionId")
	if err != nil {
		return models.PlayRecord{}, err
	}
	userID, err := parseInt32(row[index["userId"]], "userId")
	if err != nil {
		return models.PlayRecord{}, err
	}

	var length *float64
	if raw := row[index["length"]]; raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.PlayRecord{}, fmt.Errorf("invalid length %q: %w", raw, err)
		}
		length = &v
	}

	return models.PlayRecord{
		Artist:        row[index["artist"]],
		FirstName:     row[index["firstName"]],
		Gender:        row[index["gender"]],
		ItemInSession: itemInSession,
		LastName:      row[index["lastName"]],
		Length:        length,
		Level:         row[index["level"]],
		Location:      row[index["location"]],
		SessionID:     sessionID,
		Song:          row[index["song"]],
		UserID:        userID,
	}, nil
}

func parseInt32(raw, field string) (int32, error) {
	// Some export tools render integral ids as "8.0"; accept that form.
	raw = strings.TrimSuffix(raw, ".0")
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return int32(v), nil
}

// WriteArtifact persists the canonical record sequence as a single CSV
// with every value quoted, for inspection or later reload.
func WriteArtifact(path string, records []models.PlayRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeQuotedRow(w, ArtifactHeader)
	for _, r := range records {
		writeQuotedRow(w, artifactRow(r))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return nil
}

// ReadArtifact loads a previously written canonical record file.
func ReadArtifact(path string) ([]models.PlayRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("artifact %s is empty", path)
	}

	index, err := artifactIndex(rows[0])
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}

	records := make([]models.PlayRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record, err := artifactRecord(row, index)
		if err != nil {
			return nil, fmt.Errorf("artifact %s row %d: %w", path, i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func artifactIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range ArtifactHeader {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q in header", name)
		}
	}
	return index, nil
}

func artifactRecord(row []string, index map[string]int) (models.PlayRecord, error) {
	itemInSession, err := parseInt32(row[index["item_in_session"]], "item_in_session")
	if err != nil {
		return models.PlayRecord{}, err
	}
	sessionID, err := parseInt32(row[index["session_id"]], "session_id")
	if err != nil {
		return models.PlayRecord{}, err
	}
	userID, err := parseInt32(row[index["user_id"]], "user_id")
	if err != nil {
		return models.PlayRecord{}, err
	}
	var length *float64
	if raw := row[index["length"]]; raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.PlayRecord{}, fmt.Errorf("invalid length %q: %w", raw, err)
		}
		length = &v
	}
	return models.PlayRecord{
		Artist:        row[index["artist"]],
		FirstName:     row[index["first_name"]],
		Gender:        row[index["gender"]],
		ItemInSession: itemInSession,
		LastName:      row[index["last_name"]],
		Length:        length,
		Level:         row[index["level"]],
		Location:      row[index["location"]],
		SessionID:     sessionID,
		Song:          row[index["song"]],
		UserID:        userID,
	}, nil
}

func artifactRow(r models.PlayRecord) []string {
	length := ""
	if r.Length != nil {
		length = strconv.FormatFloat(*r.Length, 'f', -1, 64)
	}
	return []string{
		r.Artist,
		r.FirstName,
		r.Gender,
		strconv.FormatInt(int64(r.ItemInSession), 10),
		r.LastName,
		length,
		r.Level,
		r.Location,
		strconv.FormatInt(int64(r.SessionID), 10),
		r.Song,
		strconv.FormatInt(int64(r.UserID), 10),
	}
}

func writeQuotedRow(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}
