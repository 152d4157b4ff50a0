package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (s *Server) healthHandler(c *gin.Context) {
	dbErr := s.sc.DBHealth()
	cacheErr := s.sc.CacheHealth(c.Request.Context())
	rabbitErr := s.sc.RabbitHealth()

	res := gin.H{
		"database": dbErr == nil,
		"cache":    cacheErr == nil,
		"rabbit":   rabbitErr == nil,
	}

	if dbErr != nil || cacheErr != nil {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	online := s.sc.Online()

	c.String(http.StatusOK, online)
}

// SearchActivitiesHandler fetches the candidate activities a publisher has
// in the datastore, for the caller to select from before creating a batch
func (s *Server) SearchActivitiesHandler(c *gin.Context) {
	orgRef := c.Query("orgRef")
	if orgRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orgRef parameter is required"})
		return
	}

	rows := 0
	if rowsStr := c.Query("rows"); rowsStr != "" {
		parsed, err := strconv.Atoi(rowsStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rows parameter"})
			return
		}
		rows = parsed
	}

	records, err := s.datastore.FetchOrganisationActivities(c.Request.Context(), orgRef, rows)
	if err != nil {
		log.Error().Err(err).Str("orgRef", orgRef).Msg("Datastore search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch activities: " + err.Error()})
		return
	}

	// How many of the org's activities this service already holds, so the
	// selection screen can tell new candidates from re-imports
	imported, err := s.activities.CountActivitiesByOrg(c.Request.Context(), orgRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count imported activities: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":           len(records),
		"alreadyImported": imported,
		"activities":      records,
	})
}

// getPaginationParams extracts pagination parameters from request
func getPaginationParams(c *gin.Context) (int, int) {
	// Default values
	limit := 20
	offset := 0

	// Parse limit parameter if provided
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	// Parse offset parameter if provided
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	return limit, offset
}

// getTokenID gets the token ID from the context (set by auth middleware)
func getTokenID(c *gin.Context) string {
	tokenID, exists := c.Get("tokenID")
	if !exists {
		return ""
	}
	return tokenID.(string)
}
