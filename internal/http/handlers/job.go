package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/service"
	"github.com/jmylchreest/encodarr/pkg/duration"
)

// JobHandler handles job API endpoints.
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createJob",
		Method:        "POST",
		Path:          "/api/v1/jobs",
		Summary:       "Create job",
		Description:   "Creates a job from a unified encoding config and returns the compiled command",
		Tags:          []string{"Jobs"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns jobs with optional status filter and pagination",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getJobConfig",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/config",
		Summary:     "Get job config",
		Description: "Returns the job's unified encoding config",
		Tags:        []string{"Jobs"},
	}, h.GetConfig)

	huma.Register(api, huma.Operation{
		OperationID: "updateJobConfig",
		Method:      "PUT",
		Path:        "/api/v1/jobs/{id}/config",
		Summary:     "Update job config",
		Description: "Replaces the job's config and recompiles the command. Rejected while running.",
		Tags:        []string{"Jobs"},
	}, h.UpdateConfig)

	huma.Register(api, huma.Operation{
		OperationID: "updateJobCommand",
		Method:      "PUT",
		Path:        "/api/v1/jobs/{id}/command",
		Summary:     "Set command override",
		Description: "Sets or clears a verbatim ffmpeg command override. Rejected while running.",
		Tags:        []string{"Jobs"},
	}, h.UpdateCommand)

	huma.Register(api, huma.Operation{
		OperationID: "startJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/start",
		Summary:     "Start job",
		Description: "Launches the encoder process for the job",
		Tags:        []string{"Jobs"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/stop",
		Summary:     "Stop job",
		Description: "Gracefully stops the encoder, escalating to SIGKILL after the grace period",
		Tags:        []string{"Jobs"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "killJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/kill",
		Summary:     "Force kill job",
		Description: "Kills the job's process group immediately and sweeps for orphaned encoder processes",
		Tags:        []string{"Jobs"},
	}, h.Kill)

	huma.Register(api, huma.Operation{
		OperationID: "resetJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/reset",
		Summary:     "Reset job status",
		Description: "Clears a non-running job's runtime state back to pending",
		Tags:        []string{"Jobs"},
	}, h.Reset)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Description: "Deletes a non-running job and its statistics",
		Tags:        []string{"Jobs"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "getJobLog",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/log",
		Summary:     "Tail job log",
		Description: "Returns the last N lines of the job's encoder log",
		Tags:        []string{"Jobs"},
	}, h.GetLog)

	huma.Register(api, huma.Operation{
		OperationID: "getJobStatistics",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/statistics",
		Summary:     "Get job statistics",
		Description: "Returns telemetry samples for the job, oldest first",
		Tags:        []string{"Jobs"},
	}, h.GetStatistics)
}

// CreateJobInput is the input for creating a job.
type CreateJobInput struct {
	Body models.UnifiedConfig
}

// CreateJobOutput is the output for creating a job.
type CreateJobOutput struct {
	Body struct {
		JobID         models.ULID       `json:"job_id"`
		FFmpegCommand string            `json:"ffmpeg_command"`
		Warnings      []WarningResponse `json:"warnings"`
	}
}

// Create creates a job from a unified config.
func (h *JobHandler) Create(ctx context.Context, input *CreateJobInput) (*CreateJobOutput, error) {
	job, warnings, err := h.jobService.CreateUnified(ctx, &input.Body)
	if err != nil {
		return nil, mapServiceError(err, "failed to create job")
	}

	resp := &CreateJobOutput{}
	resp.Body.JobID = job.ID
	resp.Body.FFmpegCommand = job.Command
	resp.Body.Warnings = WarningsFromCompiler(warnings)
	return resp, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Status string `query:"status" doc:"Filter by status (optional)" enum:"pending,running,stopped,error,completed,"`
	Pagination
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs       []JobResponse  `json:"jobs"`
		Pagination PaginationMeta `json:"pagination"`
	}
}

// List returns jobs with optional status filter.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var status *models.JobStatus
	if input.Status != "" {
		s := models.JobStatus(input.Status)
		status = &s
	}

	jobs, total, err := h.jobService.List(ctx, status, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	resp.Body.Pagination = PaginationMeta{
		Offset:     input.Offset,
		Limit:      input.Limit,
		TotalItems: total,
	}
	return resp, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID returns a job by ID.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.GetJob(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to get job")
	}

	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// GetJobConfigInput is the input for getting a job's config.
type GetJobConfigInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobConfigOutput is the output for getting a job's config.
type GetJobConfigOutput struct {
	Body models.UnifiedConfig
}

// GetConfig returns the job's unified config.
func (h *JobHandler) GetConfig(ctx context.Context, input *GetJobConfigInput) (*GetJobConfigOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	_, cfg, err := h.jobService.GetUnified(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to get job config")
	}

	return &GetJobConfigOutput{Body: *cfg}, nil
}

// UpdateJobConfigInput is the input for replacing a job's config.
type UpdateJobConfigInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body models.UnifiedConfig
}

// UpdateJobConfigOutput is the output for replacing a job's config.
type UpdateJobConfigOutput struct {
	Body struct {
		Job      JobResponse       `json:"job"`
		Warnings []WarningResponse `json:"warnings"`
	}
}

// UpdateConfig replaces the job's config and recompiles the command.
func (h *JobHandler) UpdateConfig(ctx context.Context, input *UpdateJobConfigInput) (*UpdateJobConfigOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, warnings, err := h.jobService.UpdateUnified(ctx, id, &input.Body)
	if err != nil {
		return nil, mapServiceError(err, "failed to update job config")
	}

	resp := &UpdateJobConfigOutput{}
	resp.Body.Job = JobFromModel(job)
	resp.Body.Warnings = WarningsFromCompiler(warnings)
	return resp, nil
}

// UpdateJobCommandInput is the input for setting a command override.
type UpdateJobCommandInput struct {
	ID   string `path:"id" doc:"Job ID (ULID)"`
	Body struct {
		Command string `json:"command" doc:"Verbatim ffmpeg command; empty clears the override"`
	}
}

// UpdateJobCommandOutput is the output for setting a command override.
type UpdateJobCommandOutput struct {
	Body JobResponse
}

// UpdateCommand sets or clears the job's command override.
func (h *JobHandler) UpdateCommand(ctx context.Context, input *UpdateJobCommandInput) (*UpdateJobCommandOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.UpdateCommand(ctx, id, input.Body.Command)
	if err != nil {
		return nil, mapServiceError(err, "failed to update command")
	}

	return &UpdateJobCommandOutput{Body: JobFromModel(job)}, nil
}

// JobActionInput is the input for job lifecycle actions.
type JobActionInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// JobActionOutput is the output for job lifecycle actions.
type JobActionOutput struct {
	Body JobResponse
}

// Start launches the encoder for the job.
func (h *JobHandler) Start(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.Start(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to start job")
	}

	return &JobActionOutput{Body: JobFromModel(job)}, nil
}

// Stop gracefully stops the job.
func (h *JobHandler) Stop(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.Stop(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to stop job")
	}

	return &JobActionOutput{Body: JobFromModel(job)}, nil
}

// KillJobOutput is the output for force killing a job.
type KillJobOutput struct {
	Body struct {
		KilledProcesses int `json:"killed_processes"`
	}
}

// Kill force kills the job's processes.
func (h *JobHandler) Kill(ctx context.Context, input *JobActionInput) (*KillJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	killed, err := h.jobService.ForceKill(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to kill job")
	}

	resp := &KillJobOutput{}
	resp.Body.KilledProcesses = killed
	return resp, nil
}

// Reset clears the job's runtime state back to pending.
func (h *JobHandler) Reset(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.jobService.ResetStatus(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "failed to reset job")
	}

	return &JobActionOutput{Body: JobFromModel(job)}, nil
}

// DeleteJobInput is the input for deleting a job.
type DeleteJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// Delete deletes a non-running job.
func (h *JobHandler) Delete(ctx context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if err := h.jobService.Delete(ctx, id); err != nil {
		return nil, mapServiceError(err, "failed to delete job")
	}

	resp := &DeleteJobOutput{}
	resp.Body.Deleted = true
	return resp, nil
}

// GetJobLogInput is the input for tailing a job's log.
type GetJobLogInput struct {
	ID    string `path:"id" doc:"Job ID (ULID)"`
	Lines int    `query:"lines" default:"100" minimum:"1" maximum:"5000" doc:"Number of trailing lines"`
}

// GetJobLogOutput is the output for tailing a job's log.
type GetJobLogOutput struct {
	Body struct {
		Lines []string `json:"lines"`
	}
}

// GetLog returns the last N lines of the job's encoder log.
func (h *JobHandler) GetLog(ctx context.Context, input *GetJobLogInput) (*GetJobLogOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	lines, err := h.jobService.TailLog(ctx, id, input.Lines)
	if err != nil {
		return nil, mapServiceError(err, "failed to read job log")
	}

	resp := &GetJobLogOutput{}
	resp.Body.Lines = lines
	if resp.Body.Lines == nil {
		resp.Body.Lines = []string{}
	}
	return resp, nil
}

// GetJobStatisticsInput is the input for getting job statistics.
type GetJobStatisticsInput struct {
	ID    string `path:"id" doc:"Job ID (ULID)"`
	Since string `query:"since" doc:"Only samples newer than this point, as an RFC3339 timestamp or a relative expression like '10 minutes ago'"`
	Limit int    `query:"limit" default:"300" minimum:"1" maximum:"5000" doc:"Maximum number of samples"`
}

// GetJobStatisticsOutput is the output for getting job statistics.
type GetJobStatisticsOutput struct {
	Body struct {
		Samples []StatisticsSampleResponse `json:"samples"`
	}
}

// GetStatistics returns telemetry samples for the job.
func (h *JobHandler) GetStatistics(ctx context.Context, input *GetJobStatisticsInput) (*GetJobStatisticsOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	var since time.Time
	if input.Since != "" {
		since, err = time.Parse(time.RFC3339, input.Since)
		if err != nil {
			since, err = duration.ParseRelative(input.Since)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid since timestamp", err)
			}
		}
	}

	samples, err := h.jobService.GetStatistics(ctx, id, since, input.Limit)
	if err != nil {
		return nil, mapServiceError(err, "failed to get job statistics")
	}

	resp := &GetJobStatisticsOutput{}
	resp.Body.Samples = make([]StatisticsSampleResponse, 0, len(samples))
	for _, s := range samples {
		resp.Body.Samples = append(resp.Body.Samples, StatisticsSampleFromModel(s))
	}
	return resp, nil
}
