package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
)

type quickGenerateBody struct {
	Prompt string `json:"prompt"`
}

func (s *Server) QuickGenerate(c *gin.Context) {
	var body quickGenerateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	handle, err := s.orchSvc.QuickGenerate(c.Request.Context(), orchdomain.QuickGenerateRequest{
		TenantID: tenantIDFrom(c),
		UserID:   userIDFrom(c),
		Prompt:   strings.TrimSpace(body.Prompt),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

type guidedGenerateBody struct {
	Industry    string `json:"industry"`
	Goal        string `json:"goal"`
	Description string `json:"description"`
	ToneLength  string `json:"tone_length"`
}

func (s *Server) GuidedGenerate(c *gin.Context) {
	var body guidedGenerateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	handle, err := s.orchSvc.GuidedGenerate(c.Request.Context(), orchdomain.GuidedGenerateRequest{
		TenantID:    tenantIDFrom(c),
		UserID:      userIDFrom(c),
		Industry:    strings.TrimSpace(body.Industry),
		Goal:        strings.TrimSpace(body.Goal),
		Description: strings.TrimSpace(body.Description),
		ToneLength:  strings.TrimSpace(body.ToneLength),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

type editQuestionBody struct {
	Original json.RawMessage `json:"original"`
	Prompt   string          `json:"prompt"`
	SurveyID *string         `json:"survey_id,omitempty"`
}

// EditQuestion is synchronous: the caller blocks until the rewritten question
// is ready.
func (s *Server) EditQuestion(c *gin.Context) {
	var body editQuestionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	surveyID, err := optionalID(body.SurveyID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	question, err := s.orchSvc.EditQuestion(c.Request.Context(), orchdomain.EditQuestionRequest{
		TenantID: tenantIDFrom(c),
		UserID:   userIDFrom(c),
		Original: body.Original,
		Prompt:   strings.TrimSpace(body.Prompt),
		SurveyID: surveyID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"question": question}})
}

type conversationBody struct {
	Prompt        string          `json:"prompt"`
	CurrentSurvey json.RawMessage `json:"current_survey,omitempty"`
	SurveyID      *string         `json:"survey_id,omitempty"`
}

// ContinueConversation is synchronous like EditQuestion.
func (s *Server) ContinueConversation(c *gin.Context) {
	var body conversationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	surveyID, err := optionalID(body.SurveyID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.orchSvc.Continue(c.Request.Context(), orchdomain.ConversationRequest{
		TenantID:      tenantIDFrom(c),
		UserID:        userIDFrom(c),
		Prompt:        strings.TrimSpace(body.Prompt),
		CurrentSurvey: body.CurrentSurvey,
		SurveyID:      surveyID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ResetConversation clears the shared chat context.
func (s *Server) ResetConversation(c *gin.Context) {
	if err := s.orchSvc.ResetConversation(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"reset": true}})
}

type editSurveyBody struct {
	Instructions string `json:"instructions"`
}

func (s *Server) EditSurvey(c *gin.Context) {
	surveyID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body editSurveyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	handle, err := s.orchSvc.EditSurvey(c.Request.Context(), orchdomain.EditSurveyRequest{
		TenantID:     tenantIDFrom(c),
		UserID:       userIDFrom(c),
		SurveyID:     surveyID,
		Instructions: strings.TrimSpace(body.Instructions),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

type regenerateBody struct {
	CurrentSurvey json.RawMessage `json:"current_survey"`
	Instructions  string          `json:"instructions"`
}

func (s *Server) RegenerateSurvey(c *gin.Context) {
	surveyID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body regenerateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	handle, err := s.orchSvc.RegenerateSurvey(c.Request.Context(), orchdomain.RegenerateRequest{
		TenantID:      tenantIDFrom(c),
		UserID:        userIDFrom(c),
		SurveyID:      surveyID,
		CurrentSurvey: body.CurrentSurvey,
		Instructions:  strings.TrimSpace(body.Instructions),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

type insightsBody struct {
	QuestionIDs []string       `json:"question_ids"`
	Filters     map[string]any `json:"filters,omitempty"`
	Comparison  string         `json:"comparison,omitempty"`
}

func (s *Server) GenerateInsights(c *gin.Context) {
	surveyID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body insightsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := orchdomain.InsightsRequest{
		TenantID:   tenantIDFrom(c),
		UserID:     userIDFrom(c),
		SurveyID:   surveyID,
		Filters:    body.Filters,
		Comparison: strings.TrimSpace(body.Comparison),
	}
	for _, raw := range body.QuestionIDs {
		id, err := optionalID(&raw)
		if err != nil || id == nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		req.QuestionIDs = append(req.QuestionIDs, *id)
	}

	handle, err := s.orchSvc.GenerateInsights(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

type syntheticBody struct {
	NumResponses int `json:"num_responses"`
}

func (s *Server) GenerateSynthetic(c *gin.Context) {
	surveyID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body syntheticBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	handle, err := s.orchSvc.GenerateSynthetic(c.Request.Context(), orchdomain.SyntheticRequest{
		TenantID:     tenantIDFrom(c),
		UserID:       userIDFrom(c),
		SurveyID:     surveyID,
		NumResponses: body.NumResponses,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": handle})
}

func (s *Server) TaskStatus(c *gin.Context) {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.orchSvc.TaskStatus(c.Request.Context(), taskID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) CancelTask(c *gin.Context) {
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.orchSvc.CancelTask(c.Request.Context(), taskID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}
