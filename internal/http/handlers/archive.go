package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/service"
)

// ArchiveHandler handles job archive endpoints.
type ArchiveHandler struct {
	jobService *service.JobService
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(jobService *service.JobService) *ArchiveHandler {
	return &ArchiveHandler{
		jobService: jobService,
	}
}

// Register registers the archive routes with the API.
func (h *ArchiveHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "archiveJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/archive",
		Summary:     "Archive job",
		Description: "Snapshots a non-running job's config and removes it from the active set",
		Tags:        []string{"Archives"},
	}, h.Archive)

	huma.Register(api, huma.Operation{
		OperationID: "listArchives",
		Method:      "GET",
		Path:        "/api/v1/archives",
		Summary:     "List archived jobs",
		Description: "Returns archived jobs, most recent first",
		Tags:        []string{"Archives"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "restoreArchive",
		Method:      "POST",
		Path:        "/api/v1/archives/{id}/restore",
		Summary:     "Restore archived job",
		Description: "Creates a new active job from the archived snapshot and removes the archive entry",
		Tags:        []string{"Archives"},
	}, h.Restore)

	huma.Register(api, huma.Operation{
		OperationID: "deleteArchive",
		Method:      "DELETE",
		Path:        "/api/v1/archives/{id}",
		Summary:     "Delete archived job",
		Description: "Permanently removes an archive entry",
		Tags:        []string{"Archives"},
	}, h.Delete)
}

// ArchiveJobInput is the input for archiving a job.
type ArchiveJobInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body struct {
		Reason string `json:"reason,omitempty" doc:"Optional operator note"`
	}
}

// ArchiveJobOutput is the output for archiving a job.
type ArchiveJobOutput struct {
	Body ArchivedJobResponse
}

// Archive archives a non-running job.
func (h *ArchiveHandler) Archive(ctx context.Context, input *ArchiveJobInput) (*ArchiveJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	archived, err := h.jobService.Archive(ctx, id, input.Body.Reason)
	if err != nil {
		return nil, mapServiceError(err, "failed to archive job")
	}

	return &ArchiveJobOutput{Body: ArchivedJobFromModel(archived)}, nil
}

// ListArchivesInput is the input for listing archives.
type ListArchivesInput struct {
	Pagination
}

// ListArchivesOutput is the output for listing archives.
type ListArchivesOutput struct {
	Body struct {
		Archives   []ArchivedJobResponse `json:"archives"`
		Pagination PaginationMeta        `json:"pagination"`
	}
}

// List returns archived jobs.
func (h *ArchiveHandler) List(ctx context.Context, input *ListArchivesInput) (*ListArchivesOutput, error) {
	archives, total, err := h.jobService.ListArchives(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list archives", err)
	}

	resp := &ListArchivesOutput{}
	resp.Body.Archives = make([]ArchivedJobResponse, 0, len(archives))
	for _, a := range archives {
		resp.Body.Archives = append(resp.Body.Archives, ArchivedJobFromModel(a))
	}
	resp.Body.Pagination = PaginationMeta{
		Offset:     input.Offset,
		Limit:      input.Limit,
		TotalItems: total,
	}
	return resp, nil
}

// RestoreArchiveInput is the input for restoring an archived job.
type RestoreArchiveInput struct {
	ID string `path:"id" doc:"Archive ID (ULID)"`
}

// RestoreArchiveOutput is the output for restoring an archived job.
type RestoreArchiveOutput struct {
	Body JobResponse
}

// Restore recreates an active job from an archived snapshot.
func (h *ArchiveHandler) Restore(ctx context.Context, input *RestoreArchiveInput) (*RestoreArchiveOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.Restore(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to restore job")
	}

	return &RestoreArchiveOutput{Body: JobFromModel(job)}, nil
}

// DeleteArchiveInput is the input for deleting an archive entry.
type DeleteArchiveInput struct {
	ID string `path:"id" doc:"Archive ID (ULID)"`
}

// DeleteArchiveOutput is the output for deleting an archive entry.
type DeleteArchiveOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// Delete permanently removes an archive entry.
func (h *ArchiveHandler) Delete(ctx context.Context, input *DeleteArchiveInput) (*DeleteArchiveOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if err := h.jobService.DeleteArchive(ctx, id); err != nil {
		return nil, mapServiceError(err, "failed to delete archive")
	}

	resp := &DeleteArchiveOutput{}
	resp.Body.Deleted = true
	return resp, nil
}
