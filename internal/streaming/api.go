package streaming

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// WebRTCOfferInput is the request body for WebRTC signaling.
type WebRTCOfferInput struct {
	Mount   string `query:"mount" required:"true" example:"main" doc:"Mount to watch"`
	Remote  string `header:"X-Forwarded-For" doc:"Client address when behind a proxy"`
	RawBody []byte `contentType:"application/sdp" doc:"SDP offer from browser"`
}

// WebRTCAnswerOutput is the response body for WebRTC signaling.
type WebRTCAnswerOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// StreamListOutput is the response for listing live producers.
type StreamListOutput struct {
	Body struct {
		Streams []string `json:"streams" doc:"IDs of pipelines currently publishing"`
	}
}

// basicAuth requires the API's basic auth scheme when one is configured.
var basicAuth = []map[string][]string{{"basicAuth": {}}}

// RegisterWebRTCAPI registers WebRTC signaling endpoints with the Huma API.
func RegisterWebRTCAPI(api huma.API, webrtcManager *WebRTCManager) {
	huma.Register(api, huma.Operation{
		OperationID: "webrtc-offer",
		Method:      http.MethodPost,
		Path:        "/api/webrtc",
		Summary:     "WebRTC signaling",
		Description: "Exchange SDP offer/answer to watch a mount over WebRTC",
		Tags:        []string{"streaming"},
		Security:    basicAuth,
		Errors:      []int{401, 404, 503},
	}, func(ctx context.Context, input *WebRTCOfferInput) (*WebRTCAnswerOutput, error) {
		answer, err := webrtcManager.CreateConsumer(ctx, "/"+input.Mount, string(input.RawBody), input.Remote)
		if err != nil {
			if errors.Is(err, ErrProducerTimeout) {
				return nil, huma.Error503ServiceUnavailable("pipeline did not start in time", err)
			}
			return nil, huma.Error404NotFound("mount not found or connection failed", err)
		}
		return &WebRTCAnswerOutput{
			ContentType: "application/sdp",
			Body:        []byte(answer),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-live-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams/live",
		Summary:     "List live streams",
		Description: "Returns the IDs of pipelines that are currently publishing",
		Tags:        []string{"streaming"},
		Security:    basicAuth,
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*StreamListOutput, error) {
		out := &StreamListOutput{}
		out.Body.Streams = webrtcManager.sessions.Hub().ListStreams()
		return out, nil
	})
}
