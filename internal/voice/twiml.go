package voice

import (
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/haasonsaas/frontdesk/internal/observability"
)

// RelayPath is where the provider opens the relay websocket.
const RelayPath = "/twilio-ws"

// WebhookSettings configure the call-setup document.
type WebhookSettings struct {
	// PublicURL is the externally reachable origin of this gateway. A value
	// with a scheme is reduced to its host.
	PublicURL             string
	Greeting              string
	VoiceID               string
	TTSProvider           string
	TranscriptionProvider string
	SpeechModel           string
	Hints                 string
}

// DefaultWebhookSettings returns the stock voice configuration.
func DefaultWebhookSettings() WebhookSettings {
	return WebhookSettings{
		Greeting:              DefaultGreeting,
		TTSProvider:           "ElevenLabs",
		TranscriptionProvider: "Deepgram",
		SpeechModel:           "nova-2-general",
		Hints:                 "cigna",
	}
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Relay twimlRelay `xml:"ConversationRelay"`
}

type twimlRelay struct {
	URL                          string `xml:"url,attr"`
	WelcomeGreeting              string `xml:"welcomeGreeting,attr"`
	WelcomeGreetingInterruptible string `xml:"welcomeGreetingInterruptible,attr"`
	TTSProvider                  string `xml:"ttsProvider,attr"`
	Voice                        string `xml:"voice,attr"`
	Hints                        string `xml:"hints,attr,omitempty"`
	TranscriptionProvider        string `xml:"transcriptionProvider,attr"`
	SpeechModel                  string `xml:"speechModel,attr"`
	Preemptible                  string `xml:"preemptible,attr"`
}

// PublicHost extracts the host of a public URL. Bare hosts are returned
// unchanged.
func PublicHost(publicURL string) (string, error) {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return "", errors.New("voice: public url is not configured")
	}
	if strings.Contains(publicURL, "://") {
		u, err := url.Parse(publicURL)
		if err != nil {
			return "", err
		}
		if u.Host == "" {
			return "", errors.New("voice: public url has no host")
		}
		return u.Host, nil
	}
	return strings.TrimRight(publicURL, "/"), nil
}

// RenderTwiML builds the call-setup document that connects the call to the
// relay websocket.
func RenderTwiML(s WebhookSettings) ([]byte, error) {
	host, err := PublicHost(s.PublicURL)
	if err != nil {
		return nil, err
	}
	doc := twimlResponse{
		Connect: twimlConnect{Relay: twimlRelay{
			URL:                          "wss://" + host + RelayPath,
			WelcomeGreeting:              s.Greeting,
			WelcomeGreetingInterruptible: "none",
			TTSProvider:                  s.TTSProvider,
			Voice:                        s.VoiceID,
			Hints:                        s.Hints,
			TranscriptionProvider:        s.TranscriptionProvider,
			SpeechModel:                  s.SpeechModel,
			Preemptible:                  "true",
		}},
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// WebhookHandler answers the provider's incoming-call webhook. Its settings
// can be swapped while serving.
type WebhookHandler struct {
	settings atomic.Pointer[WebhookSettings]
	logger   *observability.Logger
}

// NewWebhookHandler creates the incoming-call handler.
func NewWebhookHandler(settings WebhookSettings, logger *observability.Logger) *WebhookHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &WebhookHandler{logger: logger}
	h.Update(settings)
	return h
}

// Update replaces the settings used for subsequent calls.
func (h *WebhookHandler) Update(settings WebhookSettings) {
	h.settings.Store(&settings)
}

// Settings returns the current settings.
func (h *WebhookHandler) Settings() WebhookSettings {
	return *h.settings.Load()
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := RenderTwiML(h.Settings())
	if err != nil {
		h.logger.Error(r.Context(), "incoming call webhook failed", "error", err)
		http.Error(w, "voice gateway misconfigured", http.StatusInternalServerError)
		return
	}
	h.logger.Info(r.Context(), "incoming call", "call_sid", r.FormValue("CallSid"))
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body) //nolint:errcheck
}
