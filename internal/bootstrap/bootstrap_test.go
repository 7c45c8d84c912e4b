package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BearBump/FreightDesk/config"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/googlemaps"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/BearBump/FreightDesk/internal/services/routeworker"
	"github.com/BearBump/FreightDesk/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenStorage_Memory(t *testing.T) {
	st, err := OpenStorage(context.Background(), &config.Config{Storage: config.StorageConfig{Driver: "memory"}}, time.Second, quietLog())
	require.NoError(t, err)
	defer st.Close()
	require.IsType(t, &memstore.Storage{}, st)
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), &config.Config{Storage: config.StorageConfig{Driver: "mongo"}}, time.Second, quietLog())
	require.Error(t, err)
}

func TestOpenStorage_PostgresGivesUp(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Host: "127.0.0.1", Port: 1, Username: "u", Password: "p", DBName: "db"}}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := OpenStorage(ctx, cfg, 500*time.Millisecond, quietLog())
	require.Error(t, err)
}

func TestMapsClient(t *testing.T) {
	c, closeFn, err := MapsClient(config.MapsConfig{Provider: "fake"})
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &fake.Client{}, c)

	_, _, err = MapsClient(config.MapsConfig{Provider: "google"})
	require.Error(t, err)

	c, closeFn, err = MapsClient(config.MapsConfig{APIKey: "k"})
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &googlemaps.Client{}, c)

	_, _, err = MapsClient(config.MapsConfig{Provider: "osm"})
	require.Error(t, err)
}

func TestVocabulary(t *testing.T) {
	v, err := Vocabulary(config.VocabularyConfig{})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, v.Initial())

	v, err = Vocabulary(config.VocabularyConfig{
		Version:         7,
		Initial:         "NEW",
		Statuses:        []string{"NEW", "DONE"},
		Terminal:        []string{"DONE"},
		Transitions:     map[string][]string{"NEW": {"DONE"}},
		Priorities:      []string{"NORMAL"},
		DefaultPriority: "NORMAL",
	})
	require.NoError(t, err)
	require.Equal(t, 7, v.Version())
	require.True(t, v.CanTransition("NEW", "DONE"))
}

func TestWorkerSettings(t *testing.T) {
	s, p := WorkerSettings(config.WorkerConfig{BatchSize: 5, LeaseSeconds: 30, Backoff2Seconds: 60})
	require.Equal(t, 5, s.BatchSize)
	require.Equal(t, 30*time.Second, s.Lease)
	require.Zero(t, s.PollInterval)
	require.Equal(t, time.Minute, p.Backoff2)

	w := routeworker.New(nil, nil, nil, nil, "", quietLog()).WithSettings(s)
	require.Equal(t, routeworker.DefaultSettings().PollInterval, w.Settings().PollInterval)
}
