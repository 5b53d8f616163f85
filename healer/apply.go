package healer

import (
	"context"

	"goa.design/nl2api/metadata"
)

// ApplyDeltas applies every proposed delta to the project's metadata via
// the repository: missing parameters are upserted by (endpoint, name);
// parameter corrections rename only when the old name resolves and the
// new name is not already taken (enforced by the repository); error
// messages are inserted only when none already exists for that
// (endpoint, statusCode). Every per-delta failure is logged and skipped,
// so one bad delta doesn't block the rest from applying.
func (h *Healer) ApplyDeltas(ctx context.Context, projectID int, deltas *MetadataDeltas) {
	if deltas == nil {
		return
	}

	for _, d := range deltas.MissingParameters {
		ep, err := h.repo.FindByLabel(ctx, projectID, d.Method+" "+d.EndpointPath)
		if err != nil {
			h.logger.Warn(ctx, "healer: skip missing-parameter delta, endpoint not found", "method", d.Method, "path", d.EndpointPath, "err", err)
			continue
		}
		param := &metadata.RequestParameter{
			EndpointID: ep.ID,
			Name:       d.ParameterName,
			In:         metadata.ParamLocation(d.Location),
			Type:       d.ParameterType,
			Required:   d.IsRequired,
		}
		if err := h.repo.UpsertParameter(ctx, projectID, param); err != nil {
			h.logger.Warn(ctx, "healer: apply missing-parameter delta failed", "endpoint", ep.Label(), "parameter", d.ParameterName, "err", err)
		}
	}

	for _, d := range deltas.ParameterCorrections {
		ep, err := h.repo.FindByLabel(ctx, projectID, d.Method+" "+d.EndpointPath)
		if err != nil {
			h.logger.Warn(ctx, "healer: skip parameter-correction delta, endpoint not found", "method", d.Method, "path", d.EndpointPath, "err", err)
			continue
		}
		if err := h.repo.RenameParameter(ctx, projectID, ep.ID, d.OldParamName, d.NewParamName); err != nil {
			h.logger.Warn(ctx, "healer: apply parameter-correction delta failed", "endpoint", ep.Label(), "from", d.OldParamName, "to", d.NewParamName, "err", err)
		}
	}

	for _, d := range deltas.ErrorMessages {
		ep, err := h.repo.FindByLabel(ctx, projectID, d.Method+" "+d.EndpointPath)
		if err != nil {
			h.logger.Warn(ctx, "healer: skip error-message delta, endpoint not found", "method", d.Method, "path", d.EndpointPath, "err", err)
			continue
		}
		msg := &metadata.ResponseMessage{
			EndpointID: ep.ID,
			StatusCode: d.StatusCode,
			Message:    d.Message,
			Suggestion: d.Suggestion,
		}
		if err := h.repo.UpsertResponseMessage(ctx, projectID, msg); err != nil {
			h.logger.Warn(ctx, "healer: apply error-message delta failed", "endpoint", ep.Label(), "status", d.StatusCode, "err", err)
		}
	}
}
