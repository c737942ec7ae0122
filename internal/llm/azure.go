package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/pgagents/pgagents/internal/azureauth"
)

const defaultAzureAPIVersion = "2024-10-21"

// newAzure targets an Azure OpenAI deployment. Model is the deployment name.
// An API key is sent as the api-key header; without one the request carries
// an Entra bearer token.
func newAzure(cfg Config) (LLM, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	deployment := strings.TrimSpace(cfg.Model)
	if deployment == "" {
		return nil, fmt.Errorf("azure openai deployment is required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAzureAPIVersion
	}

	var authorize func(context.Context, *http.Request) error
	if apiKey := strings.TrimSpace(cfg.APIKey); apiKey != "" {
		authorize = func(_ context.Context, req *http.Request) error {
			req.Header.Set("api-key", apiKey)
			return nil
		}
	} else {
		cred := cfg.Credential
		if cred == nil {
			var err error
			cred, err = azureauth.NewCredential(cfg.AzureCredential)
			if err != nil {
				return nil, err
			}
		}
		tokens := &tokenCache{credential: cred, scope: azureauth.CognitiveServicesScope}
		authorize = func(ctx context.Context, req *http.Request) error {
			token, err := tokens.get(ctx)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		}
	}

	return &chatCompletions{
		endpoint: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			endpoint, url.PathEscape(deployment), url.QueryEscape(version)),
		temperature: cfg.Temperature,
		authorize:   authorize,
		client:      &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}, nil
}

// tokenCache reuses an access token until shortly before it expires.
type tokenCache struct {
	credential azcore.TokenCredential
	scope      string

	mu      sync.Mutex
	current azcore.AccessToken
}

const tokenRefreshMargin = 2 * time.Minute

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Token != "" && time.Until(c.current.ExpiresOn) > tokenRefreshMargin {
		return c.current.Token, nil
	}
	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
	if err != nil {
		return "", fmt.Errorf("get entra token: %w", err)
	}
	c.current = token
	return token.Token, nil
}
