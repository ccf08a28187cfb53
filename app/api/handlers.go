package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
	"github.com/lysyi3m/social-comb/app/state"
)

const authSessionCookie = "mastodon_auth_session"

func NewHandler(feedProvider FeedProviderInterface, authenticator AuthenticatorInterface,
	stateStore *state.Store[state.State], followings []sources.MastodonUser,
	httpClient *http.Client) *Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Handler{
		feedProvider:  feedProvider,
		authenticator: authenticator,
		stateStore:    stateStore,
		followings:    followings,
		httpClient:    httpClient,
	}
}

func (h *Handler) GetMergedFeed(c *gin.Context) {
	corsRestricted := c.Query("isCorsRestricted") == "true"
	c.JSON(http.StatusOK, h.feedProvider.GetMergedFeed(corsRestricted))
}

// ProxyImage streams a remote image through the server's origin so
// CORS-restricted clients can render it.
func (h *Handler) ProxyImage(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.Status(http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		slog.Error("Proxy fetch failed", "url", rawURL, "error", err)
		c.Status(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Status(resp.StatusCode)
		return
	}

	c.DataFromReader(http.StatusOK, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, nil)
}

// authSession carries the start-request parameters across the OAuth
// redirect, serialized into a cookie.
type authSession struct {
	InstanceName string `json:"instanceName"`
	BaseURL      string `json:"baseUrl"`
}

func (h *Handler) StartMastodonAuth(c *gin.Context) {
	instanceName := c.Query("instanceName")
	baseURL := c.Query("socialMediaCenterBaseUrl")
	if instanceName == "" || baseURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instanceName and socialMediaCenterBaseUrl are required"})
		return
	}

	authURL, err := h.authenticator.StartAuthorization(c.Request.Context(), instanceName, baseURL)
	if err != nil {
		slog.Error("Failed to start Mastodon authorization", "instance", instanceName, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to register with instance"})
		return
	}

	session, err := json.Marshal(authSession{InstanceName: instanceName, BaseURL: baseURL})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.SetCookie(authSessionCookie, base64.URLEncoding.EncodeToString(session), int(time.Hour.Seconds()), "/", "", false, true)

	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) CompleteMastodonAuth(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	rawSession, err := c.Cookie(authSessionCookie)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization was not started in this browser"})
		return
	}

	decoded, err := base64.URLEncoding.DecodeString(rawSession)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session cookie"})
		return
	}
	var session authSession
	if err := json.Unmarshal(decoded, &session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session cookie"})
		return
	}

	account, err := h.authenticator.CompleteAuthorization(c.Request.Context(), session.InstanceName, session.BaseURL, code)
	if err != nil {
		slog.Error("Failed to complete Mastodon authorization", "instance", session.InstanceName, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	// The session cookie is single-use.
	c.SetCookie(authSessionCookie, "", -1, "/", "", false, true)

	slog.Info("Mastodon account authorized", "account", account)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) GetUnauthenticatedMastodonAccounts(c *gin.Context) {
	missing, err := h.authenticator.MissingCredentials(h.followings)
	if err != nil {
		slog.Error("Failed to load credentials", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, missing)
}

func (h *Handler) RequestRefresh(c *gin.Context) {
	platform := feed.Platform(c.Query("platform"))
	if platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform is required"})
		return
	}

	h.feedProvider.RequestImmediateUpdate(c.Request.Context(), platform)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetFirstVisibleItem(c *gin.Context) {
	deviceID := c.Query("deviceId")
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	appState, err := h.stateStore.Load()
	if err != nil {
		slog.Error("Failed to load state", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	itemID, ok := appState.DeviceIDToFirstVisibleItem[deviceID]
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"itemId": itemID})
}

func (h *Handler) SetFirstVisibleItem(c *gin.Context) {
	var body struct {
		DeviceID string `json:"deviceId"`
		ItemID   string `json:"itemId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DeviceID == "" || body.ItemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId and itemId are required"})
		return
	}

	err := h.stateStore.Update(func(s state.State) state.State {
		return s.WithFirstVisibleItem(body.DeviceID, body.ItemID)
	})
	if err != nil {
		slog.Error("Failed to persist state", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	counts := h.feedProvider.RetainedCounts()
	retained := map[string]int{}
	total := 0
	for platform, count := range counts {
		retained[string(platform)] = count
		total += count
	}
	health["retained_items"] = retained
	health["total_items"] = total

	c.JSON(http.StatusOK, health)
}
