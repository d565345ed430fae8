package manifest

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

// Loader reads manifest text from disk or over HTTP.
type Loader struct {
	Client *http.Client
}

func NewLoader() *Loader {
	return &Loader{Client: http.DefaultClient}
}

// Load returns the specifiers of src. Remote sources are fetched once, without retry.
func (l *Loader) Load(ctx context.Context, src Source) ([]Specifier, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.IsRemote() {
		return l.loadRemote(ctx, src)
	}
	f, err := os.Open(src.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, src.Location, err)
	}
	defer f.Close()
	return Parse(f)
}

func (l *Loader) loadRemote(ctx context.Context, src Source) ([]Specifier, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSource, src.Location, err)
	}
	log.Debug().Str("component", "manifest").Msgf("manifest.Loader.Load get url=%s", src.Location)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, src.Location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status=%d", ErrUnreachable, src.Location, resp.StatusCode)
	}
	return Parse(resp.Body)
}
