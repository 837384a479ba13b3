package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/rtspcam/internal/api/models"
	"github.com/smazurov/rtspcam/internal/ffmpeg"
	"github.com/smazurov/rtspcam/internal/media"
	"github.com/smazurov/rtspcam/internal/overlay"
)

// previewStreamID names the producer path in commands rendered while no
// pipeline is running.
const previewStreamID = "preview"

func (s *Server) registerMountRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-mounts",
		Method:      http.MethodGet,
		Path:        "/api/mounts",
		Summary:     "List Mounts",
		Description: "List mounted streams with their viewers and pipeline state",
		Tags:        []string{"mounts"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.MountListResponse, error) {
		factories := s.options.Mounts.Factories()
		out := make([]models.MountData, 0, len(factories))
		for _, f := range factories {
			out = append(out, s.mountData(f))
		}
		return &models.MountListResponse{
			Body: models.MountListData{
				Mounts: out,
				Count:  len(out),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-mount-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/mounts/{name}/pipeline",
		Summary:     "Get Mount Pipeline",
		Description: "Get the pipeline description of a mount and the ffmpeg command that runs it",
		Tags:        []string{"mounts"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.MountRequest) (*models.PipelineResponse, error) {
		f, err := s.options.Mounts.Lookup(input.Name)
		if err != nil {
			if errors.Is(err, media.ErrMountNotFound) {
				return nil, huma.Error404NotFound("mount not found", err)
			}
			return nil, huma.Error500InternalServerError("mount lookup failed", err)
		}

		desc := f.Description()
		data := models.PipelineData{
			Mount:       f.Mount(),
			Description: desc.String(),
		}
		if s.options.Renderer != nil {
			streamID := previewStreamID
			if cur := f.Current(); cur != nil {
				streamID = cur.StreamID()
			}
			args, renderErr := s.options.Renderer.Render(desc, streamID)
			if renderErr != nil {
				return nil, huma.Error500InternalServerError("render pipeline command", renderErr)
			}
			data.Command = ffmpeg.Command(args)
		}
		return &models.PipelineResponse{Body: data}, nil
	})
}

func (s *Server) mountData(f *media.Factory) models.MountData {
	cfg := f.Config()
	data := models.MountData{
		Path:       f.Mount(),
		Shared:     f.Shared(),
		Clients:    f.Clients(),
		State:      "idle",
		Resolution: cfg.Resolution(),
		Framerate:  cfg.Framerate,
		Bitrate:    cfg.Bitrate,
	}
	if s.options.MountURL != nil {
		data.URL = s.options.MountURL(f.Mount())
	}
	if cur := f.Current(); cur != nil {
		h := cur.Handle()
		data.State = string(h.State())
		data.HandleID = h.ID()
	}
	if ref := f.Overlay(); ref != nil {
		data.OverlayAttached = true
		if text, err := ref.Get(overlay.TextProperty); err == nil {
			data.OverlayText = text
		}
	}
	return data
}
