package geocoding

import (
	"context"
	"testing"

	"github.com/BearBump/FreightDesk/internal/cache/rediscache"
	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/integrations/maps/fake"
	"github.com/BearBump/FreightDesk/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type clientMock struct{ mock.Mock }

func (m *clientMock) Geocode(ctx context.Context, postalCode, country string) ([]models.Coordinate, error) {
	args := m.Called(ctx, postalCode, country)
	res, _ := args.Get(0).([]models.Coordinate)
	return res, args.Error(1)
}

func (m *clientMock) Directions(ctx context.Context, origin, destination string) (int64, int64, error) {
	args := m.Called(ctx, origin, destination)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func TestGeocoder_ResolveAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(rediscache.Options{Addr: mr.Addr()}, "")
	client := fake.New()
	g := New(client, rc, "", nil)

	ctx := context.Background()
	c, err := g.Resolve(ctx, " 10001 ")
	require.NoError(t, err)
	require.Equal(t, models.Coordinate{Lat: 40.7128, Lng: -74.0060}, c)
	require.True(t, mr.Exists("geo:postal:10001"))
	require.Zero(t, mr.TTL("geo:postal:10001"))

	c2, err := g.Resolve(ctx, "10001")
	require.NoError(t, err)
	require.Equal(t, c, c2)
	require.Equal(t, int64(1), client.GeocodeCalls())
}

func TestGeocoder_EmptyPostal(t *testing.T) {
	_, err := New(fake.New(), nil, "", nil).Resolve(context.Background(), "   ")
	require.ErrorIs(t, err, errs.ErrInvalidPostalCode)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestGeocoder_ZeroAndAmbiguousAreNotFound(t *testing.T) {
	g := New(fake.New(), nil, "", nil)

	_, err := g.Resolve(context.Background(), "00000")
	require.ErrorIs(t, err, errs.ErrPostalCodeNotFound)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = g.Resolve(context.Background(), "42223")
	require.ErrorIs(t, err, errs.ErrPostalCodeNotFound)
}

func TestGeocoder_DuplicateResultsAreNotAmbiguous(t *testing.T) {
	c := models.Coordinate{Lat: 1, Lng: 2}
	g := New(fake.New().With("11111", c, c), nil, "", nil)
	got, err := g.Resolve(context.Background(), "11111")
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestGeocoder_ProviderErrorIsDependency(t *testing.T) {
	m := &clientMock{}
	m.On("Geocode", mock.Anything, "10001", "US").Return(nil, &errs.ProviderError{Op: "geocode", Status: "OVER_QUERY_LIMIT"})

	_, err := New(m, nil, "US", nil).Resolve(context.Background(), "10001")
	require.ErrorIs(t, err, errs.ErrProvider)
	require.Equal(t, errs.KindDependency, errs.KindOf(err))
	m.AssertExpectations(t)
}

func TestGeocoder_CacheDownFallsThroughToProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(rediscache.Options{Addr: mr.Addr()}, "")
	mr.Close()

	c, err := New(fake.New(), rc, "", nil).Resolve(context.Background(), "90001")
	require.NoError(t, err)
	require.Equal(t, 34.0522, c.Lat)
}
