package platform

import (
	"github.com/google/go-github/v74/github"

	"github.com/hyperionlabs/mergebot/internal/model"
)

func mapIssue(raw *github.Issue, comments []*github.IssueComment) *model.Issue {
	labels := make(map[string]struct{}, len(raw.Labels))
	for _, l := range raw.Labels {
		labels[l.GetName()] = struct{}{}
	}

	assignees := make([]string, 0, len(raw.Assignees))
	for _, a := range raw.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	mapped := &model.Issue{
		Number: raw.GetNumber(),
		Title: raw.GetTitle(),
		Body: raw.GetBody(),
		Labels: labels,
		Assignees: assignees,
		URL: raw.GetHTMLURL(),
		CreatedAt: raw.GetCreatedAt().Time,
		UpdatedAt: raw.GetUpdatedAt().Time,
	}

	for _, c := range comments {
		mapped.Comments = append(mapped.Comments, model.Comment{
			Author: c.GetUser().GetLogin(),
			Body: c.GetBody(),
			CreatedAt: c.GetCreatedAt().Time,
		})
	}

	return mapped
}

func mapPullRequest(raw *github.PullRequest) *model.PullRequest {
	labels := make([]string, 0, len(raw.Labels))
	for _, l := range raw.Labels {
		labels = append(labels, l.GetName())
	}

	pr := &model.PullRequest{
		Number: raw.GetNumber(),
		Head: raw.GetHead().GetRef(),
		Base: raw.GetBase().GetRef(),
		State: mapPRState(raw),
		Labels: labels,
		URL: raw.GetHTMLURL(),
	}

	if raw.Mergeable == nil {
		pr.Mergeable = model.TriUnknown
	} else if *raw.Mergeable {
		pr.Mergeable = model.TriTrue
	} else {
		pr.Mergeable = model.TriFalse
	}

	return pr
}

func mapPRState(raw *github.PullRequest) model.PRState {
	if raw.GetMerged() {
		return model.PRStateMerged
	}
	if raw.GetState() == "closed" {
		return model.PRStateClosed
	}
	return model.PRStateOpen
}

// deriveCIStatus combines commit statuses and check-runs into one
// CIStatus: any failing item makes the state failure; otherwise any
// erroring item (cancelled, timed out, action required) makes it error;
// otherwise any pending item keeps it pending; otherwise it is a success.
func deriveCIStatus(combined *github.CombinedStatus, checks *github.ListCheckRunsResults) model.CIStatus {
	var status model.CIStatus

	for _, s := range combined.Statuses {
		switch s.GetState() {
		case "success":
			status.Success++
		case "pending":
			status.Pending++
		case "failure":
			status.Failure++
		case "error":
			status.Error++
		}
	}

	if checks != nil {
		for _, c := range checks.CheckRuns {
			if c.GetStatus() != "completed" {
				status.Pending++
				continue
			}
			switch c.GetConclusion() {
			case "success", "neutral", "skipped":
				status.Success++
			case "failure":
				status.Failure++
			case "cancelled", "timed_out", "action_required":
				status.Error++
			default:
				status.Pending++
			}
		}
	}

	switch {
	case status.Failure > 0:
		status.State = model.CIStateFailure
	case status.Error > 0:
		status.State = model.CIStateError
	case status.Pending > 0:
		status.State = model.CIStatePending
	default:
		status.State = model.CIStateSuccess
	}

	return status
}
