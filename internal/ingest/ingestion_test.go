package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hotelres/dataset"
	"github.com/YuminosukeSato/hotelres/internal/config"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func bookings(n int) string {
	var b strings.Builder
	b.WriteString("Booking_ID,lead_time,booking_status\n")
	for i := 0; i < n; i++ {
		status := "Not_Canceled"
		if i%3 == 0 {
			status = "Canceled"
		}
		b.WriteString("INN" + strconv.Itoa(i) + "," + strconv.Itoa(i*7%200) + "," + status + "\n")
	}
	return b.String()
}

func newTestIngestion(t *testing.T, csv string) *Ingestion {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "Hotel_Reservations.csv")
	require.NoError(t, os.WriteFile(src, []byte(csv), 0o600))

	cfg := config.Default()
	cfg.DataIngestion.Source = "file"
	cfg.DataIngestion.LocalPath = src
	cfg.Paths.ArtifactsDir = filepath.Join(dir, "artifacts")

	in, err := New(cfg)
	require.NoError(t, err)
	return in
}

func TestRun(t *testing.T) {
	in := newTestIngestion(t, bookings(50))
	require.NoError(t, in.Run(context.Background()))

	raw, err := dataset.ReadCSV(in.RawPath)
	require.NoError(t, err)
	assert.Equal(t, 50, raw.Len())

	train, err := dataset.ReadCSV(in.TrainPath)
	require.NoError(t, err)
	test, err := dataset.ReadCSV(in.TestPath)
	require.NoError(t, err)
	assert.Equal(t, 40, train.Len())
	assert.Equal(t, 10, test.Len())
	assert.Equal(t, raw.Columns(), train.Columns())

	ids := map[string]bool{}
	for _, f := range []*dataset.Frame{train, test} {
		col, err := f.Column("Booking_ID")
		require.NoError(t, err)
		for _, id := range col {
			assert.False(t, ids[id], "row %s appears twice", id)
			ids[id] = true
		}
	}
	assert.Len(t, ids, 50)

	// same seed, same split
	first, err := os.ReadFile(in.TestPath)
	require.NoError(t, err)
	require.NoError(t, in.Run(context.Background()))
	second, err := os.ReadFile(in.TestPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunDownloadFailure(t *testing.T) {
	in := newTestIngestion(t, bookings(10))
	in.Source = &FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}

	err := in.Run(context.Background())
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Error while initiating the data ingestion", se.Message)

	var inner *errors.StageError
	require.True(t, errors.As(se.Err, &inner))
	assert.Equal(t, "Error while downloading the csv file", inner.Message)
	assert.NoFileExists(t, in.RawPath)
}

func TestRunSplitFailure(t *testing.T) {
	in := newTestIngestion(t, "")

	err := in.Run(context.Background())
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	var inner *errors.StageError
	require.True(t, errors.As(se.Err, &inner))
	assert.Equal(t, "Error while splitting the data into train and test sets", inner.Message)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestRunTooFewRows(t *testing.T) {
	in := newTestIngestion(t, bookings(1))
	assert.Error(t, in.Run(context.Background()))
}

func TestFileSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&FileSource{Path: "whatever.csv"}).Fetch(ctx, filepath.Join(t.TempDir(), "raw.csv"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGCSSourceMissingObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	t.Setenv("STORAGE_EMULATOR_HOST", srv.Listener.Addr().String())

	dst := filepath.Join(t.TempDir(), "raw.csv")
	src := &GCSSource{Bucket: "hotel-reservations-bucket", Object: "Hotel_Reservations.csv"}
	assert.Error(t, src.Fetch(context.Background(), dst))
	assert.NoFileExists(t, dst)
	assert.Equal(t, "gs://hotel-reservations-bucket/Hotel_Reservations.csv", src.String())
}

func TestGCSSourceRequiresNames(t *testing.T) {
	var ve *errors.ValidationError
	assert.True(t, errors.As((&GCSSource{}).Fetch(context.Background(), "x"), &ve))
}

func TestNewRejectsUnknownSource(t *testing.T) {
	cfg := config.Default()
	cfg.DataIngestion.Source = "ftp"
	_, err := New(cfg)
	assert.Error(t, err)
}
