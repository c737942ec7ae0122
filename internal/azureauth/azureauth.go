// Package azureauth builds Microsoft Entra ID token credentials shared by the
// PostgreSQL connection provider and the Azure OpenAI client.
package azureauth

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	PostgresScope          = "https://ossrdbms-aad.database.windows.net/.default"
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"
)

const (
	CredentialDefault = "default"
	CredentialCLI     = "cli"
)

// NewCredential returns the credential named by kind: "cli" uses the Azure
// CLI login, "default" (or empty) uses the default credential chain.
func NewCredential(kind string) (azcore.TokenCredential, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", CredentialDefault:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create default azure credential: %w", err)
		}
		return cred, nil
	case CredentialCLI:
		cred, err := azidentity.NewAzureCLICredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create azure cli credential: %w", err)
		}
		return cred, nil
	default:
		return nil, fmt.Errorf("unsupported azure credential %q", kind)
	}
}
