package runner

import (
	"context"
	"fmt"

	"github.com/hairizuanbinnoorazman/cua-agent/agent"
	"github.com/hairizuanbinnoorazman/cua-agent/artifact"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
)

// startRecord creates the history row for a run. It returns nil when history
// is disabled or the row could not be written; later records are then skipped.
func (r *Runner) startRecord(ctx context.Context, inv Invocation, task agent.Task) *taskrun.Run {
	if r.history == nil {
		return nil
	}
	rec := &taskrun.Run{
		InvocationID: inv.InvocationID,
		Instruction:  task.Instruction,
	}
	if err := r.history.Create(ctx, rec); err != nil {
		r.logger.Warn(ctx, "failed to record task run", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return rec
}

// record applies setters to the run's history row. Failures are logged only.
func (r *Runner) record(ctx context.Context, rec *taskrun.Run, setters ...taskrun.UpdateSetter) {
	if r.history == nil || rec == nil {
		return
	}
	if err := r.history.Update(ctx, rec.ID, setters...); err != nil {
		r.logger.Warn(ctx, "failed to update task run", map[string]interface{}{
			"run_id": rec.ID.String(),
			"error":  err.Error(),
		})
	}
}

// saveArtifacts stores the result text and a final screenshot. Failures are
// logged only and never change the verdict.
func (r *Runner) saveArtifacts(ctx context.Context, log logger.Logger, rec *taskrun.Run, page agent.Page, message string) {
	if r.artifacts == nil {
		return
	}

	prefix := "runs/local"
	if rec != nil {
		prefix = "runs/" + rec.ID.String()
	}

	url, err := r.artifacts.Save(ctx, prefix+"/result.md", artifact.ContentTypeMarkdown, []byte(message))
	if err != nil {
		log.Warn(ctx, "failed to save result artifact", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	log.Info(ctx, "result artifact saved", map[string]interface{}{
		"url": url,
	})
	r.record(ctx, rec, taskrun.SetArtifactURL(url))

	shot, err := page.Screenshot(ctx)
	if err != nil {
		log.Warn(ctx, "failed to capture final screenshot", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := r.artifacts.Save(ctx, fmt.Sprintf("%s/screenshot.png", prefix), artifact.ContentTypePNG, shot); err != nil {
		log.Warn(ctx, "failed to save screenshot artifact", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
