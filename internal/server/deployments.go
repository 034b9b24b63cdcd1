package server

import (
	"encoding/json"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/deployment"
)

type assignExampleRequest struct {
	ExampleVersionID  string `json:"example_version_id"`
	ExampleIdentifier string `json:"example_identifier"`
	VersionTag        string `json:"version_tag"`
	DeploymentMessage string `json:"deployment_message"`
}

type assignExampleResponse struct {
	Deployment any `json:"deployment"`
	History    any `json:"history"`
}

// AssignExampleAPI handles POST /course-contents/{id}/assign-example (§4.7).
func (s *Server) AssignExampleAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	contentID := r.PathValue("id")

	var req assignExampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	d, err := s.deploymentEngine.AssignExampleToContent(r.Context(), deployment.AssignInput{
		ContentID:         contentID,
		ExampleVersionID:  req.ExampleVersionID,
		ExampleIdentifier: req.ExampleIdentifier,
		VersionTag:        req.VersionTag,
		ActorUserID:       p.UserID,
		Message:           req.DeploymentMessage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := s.store.ListDeploymentHistory(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, apierr.Database(err, "list deployment history"))
		return
	}

	httpResponseJSON(w, assignExampleResponse{Deployment: d, History: history}, http.StatusOK)
}

// UnassignExampleAPI handles DELETE /course-contents/{id}/example.
func (s *Server) UnassignExampleAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	contentID := r.PathValue("id")

	if err := s.deploymentEngine.Unassign(r.Context(), contentID, p.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	httpResponseJSON(w, map[string]string{"status": "unassigned"}, http.StatusOK)
}
