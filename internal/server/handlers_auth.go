package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/store"
)

const oauthStateTTL = 10 * time.Minute

// signState issues a short-lived JWT binding the OAuth round trip to a LINE
// user, so the callback cannot be replayed for someone else.
func (a *App) signState(lineUserID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": lineUserID,
		"iat": now.Unix(),
		"exp": now.Add(oauthStateTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

func (a *App) parseState(state string) (string, error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid state token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid state payload")
	}
	sub, _ := claims["sub"].(string)
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", errors.New("state subject missing")
	}
	return sub, nil
}

const onetimeLoginPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>Google連携</title></head>
<body>
<h1>Google Calendar連携</h1>
<p>LINEに届いたワンタイムコードを入力してください。</p>
<form method="post" action="/onetime_login">
<input type="text" name="code" placeholder="ワンタイムコード" required>
<button type="submit">認証する</button>
</form>
</body>
</html>`

func (a *App) onetimeLoginForm(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(onetimeLoginPage))
}

// onetimeLogin consumes a code from the LINE chat and redirects the browser
// to the Google consent page with a signed state.
func (a *App) onetimeLogin(c *gin.Context) {
	code := strings.TrimSpace(c.PostForm("code"))
	if code == "" {
		code = strings.TrimSpace(c.Query("code"))
	}
	if code == "" {
		writeError(c, http.StatusBadRequest, "code is required")
		return
	}

	lineUserID, err := a.store.ConsumeOnetimeCode(c.Request.Context(), code)
	if errors.Is(err, store.ErrCodeInvalid) {
		writeError(c, http.StatusBadRequest, "コードが無効か、有効期限が切れています")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "login failed")
		return
	}

	state, err := a.signState(lineUserID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot sign state")
		return
	}
	c.Redirect(http.StatusFound, a.cal.AuthURL(state))
}

// oauthCallback finishes the Google consent flow and stores the token for
// the LINE user carried in the state.
func (a *App) oauthCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		writeError(c, http.StatusBadRequest, "state and code are required")
		return
	}

	lineUserID, err := a.parseState(state)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.cal.Exchange(c.Request.Context(), lineUserID, code); err != nil {
		writeError(c, http.StatusInternalServerError, "Google認証に失敗しました")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja"><head><meta charset="utf-8"><title>連携完了</title></head>
<body><h1>✅ Google Calendar連携が完了しました</h1><p>LINEに戻って日時を送信してください。</p></body></html>`))
}
