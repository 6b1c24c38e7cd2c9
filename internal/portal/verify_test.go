package portal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLoginURL(t *testing.T) {
	assert.True(t, IsLoginURL("https://www.atmosenergy.com/accountcenter/logon/login.html"))
	assert.True(t, IsLoginURL("https://www.atmosenergy.com/accountcenter/logon/authenticate.html"))
	assert.True(t, IsLoginURL("https://portal.example.com/SignIn.aspx"))
	assert.False(t, IsLoginURL("https://www.atmosenergy.com/accountcenter/usagehistory/dailyUsageDownload.html"))
}

func TestCheckFinalURLLoginRedirect(t *testing.T) {
	err := CheckFinalURL("https://www.atmosenergy.com/accountcenter/logon/login.html", 200)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 200, authErr.StatusCode)
}

func TestCheckFinalURLErrorRedirect(t *testing.T) {
	err := CheckFinalURL("https://www.atmosenergy.com/errorPage.html", 200)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestCheckFinalURLDataURL(t *testing.T) {
	err := CheckFinalURL("https://www.atmosenergy.com/accountcenter/usagehistory/dailyUsageDownload.html", 200)

	assert.NoError(t, err)
}

func TestCheckPayloadBinaryAccepted(t *testing.T) {
	payload := append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("workbook bytes")...)

	assert.NoError(t, CheckPayload(payload))
}

func TestCheckPayloadLoginPage(t *testing.T) {
	payload := []byte(`<!DOCTYPE html><html><body>Invalid Username or Password</body></html>`)

	err := CheckPayload(payload)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "invalid username or password")
}

func TestCheckPayloadExpiredSession(t *testing.T) {
	payload := []byte(`<html><body>Your session has expired. Please log in again.</body></html>`)

	var authErr *AuthError
	require.ErrorAs(t, CheckPayload(payload), &authErr)
}

func TestCheckPayloadPortalError(t *testing.T) {
	payload := []byte(`<html><body>We're sorry, the system is temporarily unavailable.</body></html>`)

	var apiErr *APIError
	require.ErrorAs(t, CheckPayload(payload), &apiErr)
}

func TestCheckPayloadHTMLWrappedDataAccepted(t *testing.T) {
	// Real usage data has been served inside an HTML table under a
	// spreadsheet content type; it must reach the parser, not be rejected.
	payload := []byte(`
	<!DOCTYPE html>
	<html><body>
	<table><tr><th>Date</th><th>Consumption</th></tr>
	<tr><td>01/15/2026</td><td>3.4</td></tr></table>
	</body></html>
	`)

	assert.NoError(t, CheckPayload(payload))
}

func TestCheckPayloadScanIsBounded(t *testing.T) {
	// A rejection phrase past the scan window must not trigger on what is
	// otherwise a huge legitimate document.
	payload := []byte("<html><body>" + strings.Repeat("x", contentScanLimit) + "session has expired</body></html>")

	assert.NoError(t, CheckPayload(payload))
}

func TestIsHTMLDocumentLeadingWhitespace(t *testing.T) {
	assert.True(t, IsHTMLDocument([]byte("\r\n\t  <!DOCTYPE html><html></html>")))
	assert.True(t, IsHTMLDocument([]byte("<HTML><body></body></HTML>")))
	assert.False(t, IsHTMLDocument([]byte{0x50, 0x4B, 0x03, 0x04}))
}
