package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestStatement(t *testing.T) {
	t.Run("Quoted literals are replaced but statement shape is kept", func(t *testing.T) {
		out := Statement("SELECT * FROM users WHERE email = 'x@y.com'")
		assert.NotContains(t, out, "x@y.com")
		assert.Contains(t, out, "WHERE email = '***'")
	})

	t.Run("Bare numeric literals after equals are masked", func(t *testing.T) {
		out := Statement("UPDATE wallets SET balance = 1250 WHERE id = 42")
		assert.NotContains(t, out, "1250")
		assert.NotContains(t, out, "42")
		assert.Contains(t, out, "balance = ***")
	})

	t.Run("IN lists are collapsed", func(t *testing.T) {
		out := Statement("DELETE FROM tx WHERE id IN (1, 2, 3)")
		assert.Equal(t, "DELETE FROM tx WHERE id IN (***)", out)
	})

	t.Run("Empty input passes through", func(t *testing.T) {
		assert.Equal(t, "", Statement(""))
	})
}

func TestURL(t *testing.T) {
	t.Run("Every query parameter value is masked, names and path survive", func(t *testing.T) {
		out := URL("https://api.example.com/v1/wallets?token=abc123&user=bob")
		assert.Equal(t, "https://api.example.com/v1/wallets?token=***&user=***", out)
	})

	t.Run("Emails in the path are masked", func(t *testing.T) {
		out := URL("https://api.example.com/users/bob@mail.com/wallets")
		assert.NotContains(t, out, "bob@mail.com")
		assert.Contains(t, out, "***@***.***")
	})
}

func TestMaskEmail(t *testing.T) {
	out := MaskEmail("contact user@example.com for details")
	assert.NotContains(t, out, "@example.com")
	assert.Contains(t, out, "***@***.***")
}

func TestMaskPII(t *testing.T) {
	t.Run("Grouped card numbers are fully masked keeping separators", func(t *testing.T) {
		out := MaskPII("card 4111-1111-1111-1111 charged")
		assert.NotContains(t, out, "4111")
		assert.Contains(t, out, "****-****-****-****")
	})

	t.Run("Contiguous card numbers are masked", func(t *testing.T) {
		out := MaskPII("pan=4111111111111111")
		assert.NotContains(t, out, "4111111111111111")
	})

	t.Run("Short numbers are left alone", func(t *testing.T) {
		assert.Equal(t, "status 200 after 42ms", MaskPII("status 200 after 42ms"))
	})
}

func TestErrorMessage(t *testing.T) {
	out := ErrorMessage("auth failed for user@example.com: password=hunter2 token=abc")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "user@example.com")
	assert.Contains(t, out, "password=***")
}

func TestIdempotence(t *testing.T) {
	inputs := map[string]func(string) string{
		"SELECT 1 FROM t WHERE a = 'secret' AND b = 99": Statement,
		"https://x.io/p?key=v&other=w":                  URL,
		"mail me at someone@example.org":                 MaskEmail,
		"card 4111 1111 1111 1111 and 4111111111111111":  MaskPII,
		"failed: token=deadbeef for user@example.com":    ErrorMessage,
	}
	for input, fn := range inputs {
		once := fn(input)
		assert.Equal(t, once, fn(once), "sanitizer not idempotent for %q", input)
	}
}

func TestByAttributeKey(t *testing.T) {
	t.Run("db keys are treated as statements", func(t *testing.T) {
		out := ByAttributeKey("db.statement", "WHERE email = 'x@y.com'")
		assert.NotContains(t, out, "x@y.com")
	})

	t.Run("http.url keys mask query values", func(t *testing.T) {
		out := ByAttributeKey("http.url", "/callback?code=s3cr3t")
		assert.NotContains(t, out, "s3cr3t")
	})

	t.Run("header keys are blanked entirely", func(t *testing.T) {
		assert.Equal(t, "***", ByAttributeKey("http.header.authorization", "Bearer xyz"))
	})

	t.Run("Allowlisted headers pass through", func(t *testing.T) {
		assert.Equal(t, "application/json", ByAttributeKey("http.header.content-type", "application/json"))
	})

	t.Run("error keys scrub secrets and PII", func(t *testing.T) {
		out := ByAttributeKey("error.message", "rejected card 4111-1111-1111-1111")
		assert.NotContains(t, out, "4111")
	})

	t.Run("Unknown keys pass through unless they contain PII", func(t *testing.T) {
		assert.Equal(t, "wallet-789", ByAttributeKey("wallet.id", "wallet-789"))
		masked := ByAttributeKey("note", "ping bob@mail.com")
		assert.NotContains(t, masked, "bob@mail.com")
	})

	t.Run("Oversized values are truncated", func(t *testing.T) {
		long := strings.Repeat("x", 5000)
		out := ByAttributeKey("wallet.memo", long)
		assert.Len(t, out, 1024)
		assert.True(t, strings.HasSuffix(out, "..."))
	})

	t.Run("Truncation of multibyte text stays valid UTF-8", func(t *testing.T) {
		long := strings.Repeat("é", 2000)
		out := ByAttributeKey("wallet.memo", long)
		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, 1024, utf8.RuneCountInString(out))
		assert.True(t, strings.HasSuffix(out, "..."))
	})
}
