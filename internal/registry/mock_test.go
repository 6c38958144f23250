package registry

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// mockFetcher implements fetcher.Fetcher for testing.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}
