package etl

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlog/api/models"
)

const rawHeader = "artist,auth,firstName,gender,itemInSession,lastName,length,level,location,method,page,registration,sessionId,song,status,ts,userId"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeLogFile(t *testing.T, dir, name string, rows ...string) {
	t.Helper()
	content := rawHeader + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExtractFiltersAndProjects(t *testing.T) {
	e := NewExtractor(testLogger(), "testdata/event_data")

	result, err := e.Extract()
	require.NoError(t, err)

	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 5, result.RawRows)
	assert.Equal(t, 2, result.Discarded)
	require.Len(t, result.Records, 3)

	// File visit order is sorted, rows keep their in-file order.
	assert.Equal(t, "Kanye West", result.Records[0].Artist)
	assert.Equal(t, "Des'ree", result.Records[1].Artist)
	assert.Equal(t, "The Black Keys", result.Records[2].Artist)

	first := result.Records[0]
	assert.Equal(t, "Sylvie", first.FirstName)
	assert.Equal(t, "F", first.Gender)
	assert.Equal(t, int32(94), first.ItemInSession)
	assert.Equal(t, "Cruz", first.LastName)
	require.NotNil(t, first.Length)
	assert.InDelta(t, 198.48, *first.Length, 0.001)
	assert.Equal(t, "free", first.Level)
	assert.Equal(t, "Washington-Arlington-Alexandria, DC-VA-MD-WV", first.Location)
	assert.Equal(t, int32(293), first.SessionID)
	assert.Equal(t, "Celebration", first.Song)
	assert.Equal(t, int32(10), first.UserID)
}

func TestExtractDeterministicAcrossRuns(t *testing.T) {
	e := NewExtractor(testLogger(), "testdata/event_data")

	first, err := e.Extract()
	require.NoError(t, err)
	second, err := e.Extract()
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
}

func TestExtractMissingDirFails(t *testing.T) {
	e := NewExtractor(testLogger(), "testdata/does-not-exist")

	_, err := e.Extract()
	require.Error(t, err)
}

func TestExtractEmptyDirFails(t *testing.T) {
	e := NewExtractor(testLogger(), t.TempDir())

	_, err := e.Extract()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no event log files found")
}

func TestExtractShortRowFails(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "bad-events.csv",
		`Muse,Logged In,Harper,M,1,Barrett,209.5,paid`,
	)

	_, err := NewExtractor(testLogger(), dir).Extract()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed row")
}

func TestExtractBadIntegerFails(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "bad-events.csv",
		`Muse,Logged In,Harper,M,one,Barrett,209.5,paid,"Boston, MA",PUT,NextSong,1540919166796,77,Uprising,200,1541105830796,42`,
	)

	_, err := NewExtractor(testLogger(), dir).Extract()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid itemInSession")
}

func TestExtractMissingColumnFails(t *testing.T) {
	dir := t.TempDir()
	content := "auth,firstName,gender\nLogged In,Harper,M\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte(content), 0o644))

	_, err := NewExtractor(testLogger(), dir).Extract()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "artist"`)
}

func TestExtractAcceptsFloatFormattedIDs(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "events.csv",
		`Muse,Logged In,Harper,M,3.0,Barrett,209.5,paid,"Boston, MA",PUT,NextSong,1540919166796,77.0,Uprising,200,1541105830796,42.0`,
	)

	result, err := NewExtractor(testLogger(), dir).Extract()
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int32(3), result.Records[0].ItemInSession)
	assert.Equal(t, int32(77), result.Records[0].SessionID)
	assert.Equal(t, int32(42), result.Records[0].UserID)
}

func TestArtifactRoundTrip(t *testing.T) {
	e := NewExtractor(testLogger(), "testdata/event_data")
	result, err := e.Extract()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "canonical.csv")
	require.NoError(t, WriteArtifact(path, result.Records))

	records, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, result.Records, records)
}

func TestArtifactQuotesEveryValue(t *testing.T) {
	length := 198.48
	records := []models.PlayRecord{{
		Artist:        "Kanye West",
		FirstName:     "Sylvie",
		Gender:        "F",
		ItemInSession: 94,
		LastName:      "Cruz",
		Length:        &length,
		Level:         "free",
		Location:      "Washington-Arlington-Alexandria, DC-VA-MD-WV",
		SessionID:     293,
		Song:          "Celebration",
		UserID:        10,
	}}

	path := filepath.Join(t.TempDir(), "canonical.csv")
	require.NoError(t, WriteArtifact(path, records))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`"artist","first_name","gender","item_in_session","last_name","length","level","location","session_id","song","user_id"`,
		lines[0],
	)
	assert.Equal(t,
		`"Kanye West","Sylvie","F","94","Cruz","198.48","free","Washington-Arlington-Alexandria, DC-VA-MD-WV","293","Celebration","10"`,
		lines[1],
	)
}
