package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialScanner_Scan(t *testing.T) {
	text := `db_password = "hunter22"
API_KEY = "sk-1234567890abcdef"
token = "placeholder-value" if DEBUG else os.getenv("TOKEN")
client_secret = 'abcdefghijk'
empty_token = ''
`
	findings := CredentialScanner{}.Scan(text)

	require.Len(t, findings, 3)
	assert.Equal(t, Finding{Line: 1, Message: "Hardcoded password", Text: `db_password = "hunter22"`}, findings[0])
	assert.Equal(t, 2, findings[1].Line)
	assert.Equal(t, "Hardcoded API key", findings[1].Message)
	assert.Equal(t, 4, findings[2].Line)
	assert.Equal(t, "Hardcoded secret", findings[2].Message)
}

func TestCredentialScanner_SafeLinesSuppressed(t *testing.T) {
	tests := []string{
		`password = "fallback" or os.getenv("PASSWORD")`,
		`api_key = "default-key-123" if not os.environ else None`,
		`secret = "abcdefghij"; alt = getenv("SECRET")`,
		`token = "abcdefghij"; other = ""`,
	}
	for _, line := range tests {
		assert.Empty(t, CredentialScanner{}.Scan(line), line)
	}
}

func TestCredentialScanner_CaseInsensitive(t *testing.T) {
	findings := CredentialScanner{}.Scan("\n\nPASSWORD='letmein'\n")

	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].Line)
}

func TestCredentialScanner_MinimumLength(t *testing.T) {
	assert.Empty(t, CredentialScanner{}.Scan(`password = "ab"`))
	assert.Empty(t, CredentialScanner{}.Scan(`token = "short"`))
	assert.Empty(t, CredentialScanner{}.Scan(`password = "has space"`))
}
