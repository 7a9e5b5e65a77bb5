package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.GenerateQuizActivity)
	w.RegisterActivity(a.MarkRunFailedActivity)
	w.RegisterActivity(a.WriteRunSummaryActivity)
}
