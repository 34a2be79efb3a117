package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"playlog/api/database"
	"playlog/api/models"
)

// Column is one named, typed column of a target table.
type Column struct {
	Name string
	Type string
}

// TableSchema describes one denormalized target table: which columns form
// the partition key, which order rows within a partition, and which are
// plain stored attributes. DDL, inserts and reads are all generated from
// this descriptor so the three tables share one code path.
type TableSchema struct {
	Name          string
	PartitionKey  []Column
	ClusteringKey []Column
	Attributes    []Column
}

// The three hand-picked schemas. Each one exists for exactly one query, and
// its key makes that query a single-partition read. ReplacingMergeTree keyed
// on (partition key, clustering key) gives last-write-wins semantics when
// the same key is inserted twice.
var (
	PlaysBySession = TableSchema{
		Name:          "plays_by_session",
		PartitionKey:  []Column{{"session_id", "Int32"}},
		ClusteringKey: []Column{{"item_in_session", "Int32"}},
		Attributes: []Column{
			{"artist", "String"},
			{"song", "String"},
			{"length", "Nullable(Float64)"},
		},
	}

	PlaysByUserSession = TableSchema{
		Name:          "plays_by_user_session",
		PartitionKey:  []Column{{"user_id", "Int32"}, {"session_id", "Int32"}},
		ClusteringKey: []Column{{"item_in_session", "Int32"}},
		Attributes: []Column{
			{"artist", "String"},
			{"song", "String"},
			{"first_name", "String"},
			{"last_name", "String"},
		},
	}

	ListenersBySong = TableSchema{
		Name:          "listeners_by_song",
		PartitionKey:  []Column{{"song", "String"}},
		ClusteringKey: []Column{{"user_id", "Int32"}},
		Attributes: []Column{
			{"first_name", "String"},
			{"last_name", "String"},
		},
	}
)

// TargetTables lists every table the loader populates, in load order.
var TargetTables = []TableSchema{PlaysBySession, PlaysByUserSession, ListenersBySong}

// KeyColumns returns the full ordering key: partition key then clustering key.
func (t TableSchema) KeyColumns() []Column {
	key := make([]Column, 0, len(t.PartitionKey)+len(t.ClusteringKey))
	key = append(key, t.PartitionKey...)
	return append(key, t.ClusteringKey...)
}

// Columns returns every column in insert order: keys first, then attributes.
func (t TableSchema) Columns() []Column {
	return append(t.KeyColumns(), t.Attributes...)
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// CreateSQL renders the table DDL. The ORDER BY key doubles as the
// ReplacingMergeTree dedup key, so duplicate keys overwrite rather than
// accumulate.
func (t TableSchema) CreateSQL() string {
	cols := t.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("    %s %s", c.Name, c.Type)
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n%s\n) ENGINE = ReplacingMergeTree\nORDER BY (%s)",
		t.Name,
		strings.Join(defs, ",\n"),
		strings.Join(columnNames(t.KeyColumns()), ", "),
	)
}

func (t TableSchema) DropSQL() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)
}

func (t TableSchema) InsertSQL() string {
	cols := columnNames(t.Columns())
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), placeholders)
}

// SelectByPartitionSQL renders the single-partition read: all attributes,
// filtered on the full partition key, ordered by the clustering key when
// one is declared. FINAL collapses overwritten duplicates at read time.
func (t TableSchema) SelectByPartitionSQL() string {
	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s",
		strings.Join(columnNames(t.Attributes), ", "),
		t.Name,
		equalityClause(t.PartitionKey),
	)
	if len(t.ClusteringKey) > 0 {
		query += fmt.Sprintf(" ORDER BY %s ASC", strings.Join(columnNames(t.ClusteringKey), " ASC, "))
	}
	return query
}

// SelectByKeySQL renders the exact-key read: all attributes for one fully
// specified (partition key, clustering key) tuple.
func (t TableSchema) SelectByKeySQL() string {
	return fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s",
		strings.Join(columnNames(t.Attributes), ", "),
		t.Name,
		equalityClause(t.KeyColumns()),
	)
}

func equalityClause(cols []Column) string {
	terms := make([]string, len(cols))
	for i, c := range cols {
		terms[i] = c.Name + " = ?"
	}
	return strings.Join(terms, " AND ")
}

// recordValue maps a table column name onto the corresponding canonical
// record field. Every target-table column must resolve here.
func recordValue(r models.PlayRecord, column string) any {
	switch column {
	case "artist":
		return r.Artist
	case "first_name":
		return r.FirstName
	case "gender":
		return r.Gender
	case "item_in_session":
		return r.ItemInSession
	case "last_name":
		return r.LastName
	case "length":
		return r.Length
	case "level":
		return r.Level
	case "location":
		return r.Location
	case "session_id":
		return r.SessionID
	case "song":
		return r.Song
	case "user_id":
		return r.UserID
	default:
		panic(fmt.Sprintf("no canonical record field for column %q", column))
	}
}

type PlayStore struct {
	conn database.Conn
	log  *slog.Logger
}

func NewPlayStore(conn database.Conn, log *slog.Logger) *PlayStore {
	return &PlayStore{conn: conn, log: log}
}

// CreateTables creates every target table that does not exist yet.
func (s *PlayStore) CreateTables(ctx context.Context) error {
	for _, table := range TargetTables {
		if err := s.conn.Exec(ctx, table.CreateSQL()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}
	return nil
}

// DropTables drops every target table that exists.
func (s *PlayStore) DropTables(ctx context.Context) error {
	for _, table := range TargetTables {
		if err := s.conn.Exec(ctx, table.DropSQL()); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
		}
	}
	return nil
}

// Reset drops and recreates all target tables. Every load run starts here:
// the loader has no incremental mode, a run always rebuilds from scratch.
func (s *PlayStore) Reset(ctx context.Context) error {
	if err := s.DropTables(ctx); err != nil {
		return err
	}
	return s.CreateTables(ctx)
}

// LoadRecords replays every canonical record into all three target tables.
// Each table gets its own batch carrying only that table's columns. The
// batches are independent: a send failure on one table does not undo the
// others, the cure for a partial load is another Reset+LoadRecords.
func (s *PlayStore) LoadRecords(ctx context.Context, records []models.PlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	batches := make([]database.Batch, len(TargetTables))
	for i, table := range TargetTables {
		batch, err := s.conn.PrepareBatch(ctx, table.InsertSQL())
		if err != nil {
			return fmt.Errorf("failed to prepare batch for %s: %w", table.Name, err)
		}
		batches[i] = batch
	}

	for _, record := range records {
		for i, table := range TargetTables {
			values := make([]any, 0, len(table.Columns()))
			for _, col := range table.Columns() {
				values = append(values, recordValue(record, col.Name))
			}
			if err := batches[i].Append(values...); err != nil {
				return fmt.Errorf("failed to append record to %s batch: %w", table.Name, err)
			}
		}
	}

	var sendErrs []error
	for i, table := range TargetTables {
		if err := batches[i].Send(); err != nil {
			sendErrs = append(sendErrs, fmt.Errorf("failed to send batch for %s: %w", table.Name, err))
		}
	}
	if err := errors.Join(sendErrs...); err != nil {
		return err
	}

	s.log.Info("loaded canonical records", "records", len(records), "tables", len(TargetTables))
	return nil
}

// PlayBySessionItem answers "what played at this position of this session".
// Returns nil when the key was never seen.
func (s *PlayStore) GetPlayBySessionItem(ctx context.Context, sessionID, itemInSession int32) (*models.SessionItem, error) {
	row := s.conn.QueryRow(ctx, PlaysBySession.SelectByKeySQL(), sessionID, itemInSession)

	var item models.SessionItem
	if err := row.Scan(&item.Artist, &item.Song, &item.Length); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query play by session item: %w", err)
	}
	return &item, nil
}

// PlaysByUserSession answers "what did this user play in this session", in
// ascending item_in_session order. The order comes from the clustering key,
// not a client-side sort.
func (s *PlayStore) GetPlaysByUserSession(ctx context.Context, userID, sessionID int32) ([]models.UserSessionPlay, error) {
	rows, err := s.conn.Query(ctx, PlaysByUserSession.SelectByPartitionSQL(), userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays by user session: %w", err)
	}
	defer rows.Close()

	var plays []models.UserSessionPlay
	for rows.Next() {
		var play models.UserSessionPlay
		if err := rows.Scan(&play.Artist, &play.Song, &play.FirstName, &play.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan user session play: %w", err)
		}
		plays = append(plays, play)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during plays by user session query: %w", err)
	}
	return plays, nil
}

// SongListeners answers "who played this song": one name pair per distinct
// user_id, the user_id clustering key keeping repeat listens to one row.
func (s *PlayStore) GetSongListeners(ctx context.Context, song string) ([]models.Listener, error) {
	rows, err := s.conn.Query(ctx, ListenersBySong.SelectByPartitionSQL(), song)
	if err != nil {
		return nil, fmt.Errorf("failed to query song listeners: %w", err)
	}
	defer rows.Close()

	var listeners []models.Listener
	for rows.Next() {
		var listener models.Listener
		if err := rows.Scan(&listener.FirstName, &listener.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan song listener: %w", err)
		}
		listeners = append(listeners, listener)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during song listeners query: %w", err)
	}
	return listeners, nil
}

// TableCounts returns the row count of every target table.
func (s *PlayStore) TableCounts(ctx context.Context) (map[string]uint64, error) {
	counts := make(map[string]uint64, len(TargetTables))
	for _, table := range TargetTables {
		var count uint64
		query := fmt.Sprintf("SELECT count() FROM %s FINAL", table.Name)
		if err := s.conn.QueryRow(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", table.Name, err)
		}
		counts[table.Name] = count
	}
	return counts, nil
}
