package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crvs/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")

func issue(t *testing.T, svc *JWTService, expiresIn time.Duration) string {
	t.Helper()
	token, err := svc.IssueAccessToken(TokenRequest{
		Subject:         "officer-1",
		Role:            "LOCAL_REGISTRAR",
		PrimaryOfficeID: "office-ibombo",
		Scopes: []string{
			"record.create[event=tennis-club-membership]",
			"record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]",
		},
		ExpiresIn: expiresIn,
	})
	require.NoError(t, err)
	return token
}

func Test_IssueAndValidate(t *testing.T) {
	claims, err := jwtService.ValidateToken(issue(t, jwtService, time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "officer-1", claims.Subject)
	assert.Equal(t, "LOCAL_REGISTRAR", claims.Role)
	assert.Equal(t, "office-ibombo", claims.PrimaryOfficeID)
	assert.Equal(t, []string{
		"record.create[event=tennis-club-membership]",
		"record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]",
	}, claims.Scopes())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	_, err := jwtService.ValidateToken(issue(t, jwtService, -time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token has expired")
}

func Test_ValidateToken_OtherIssuerOrKey(t *testing.T) {
	_, err := jwtService.ValidateToken(issue(t, NewJWTService("test-signing-key", "someone-else"), time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = jwtService.ValidateToken(issue(t, NewJWTService("other-key", "test-issuer"), time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter(t *testing.T) {
	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(issue(t, jwtService, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "officer-1", claims.UserID)
	assert.Equal(t, "office-ibombo", claims.PrimaryOfficeID)
	assert.Len(t, claims.Scopes, 2)
}
