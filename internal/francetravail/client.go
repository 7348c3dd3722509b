// Package francetravail is a minimal client for the France Travail
// "Offres d'emploi" partner API.
package francetravail

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL  = "https://api.francetravail.io/partenaire/offresdemploi"
	authURL = "https://entreprise.francetravail.fr/connexion/oauth2/access_token?realm=/partenaire"

	oauthScope = "api_offresdemploiv2 o2dsoffre"

	// The token is refreshed this long before its announced expiry.
	tokenExpirySkew = 60 * time.Second
)

type Client struct {
	clientID     string
	clientSecret string
	logger       *zap.Logger

	HTTPClient *http.Client
	APIURL     string
	AuthURL    string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(clientID, clientSecret string, logger *zap.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		APIURL:       apiURL,
		AuthURL:      authURL,
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}
