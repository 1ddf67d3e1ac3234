package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

type voteResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Votes   int64    `json:"votes"`
	Score   float64  `json:"score"`
	Average float64  `json:"average"`
	Rating  *float64 `json:"rating,omitempty"`
}

// voteHandler returns the endpoint recording votes for field on entity. The
// object id and the score come from the {pk} and {score} path parameters;
// a score of "delete" removes the caller's vote.
func (s *Server) voteHandler(entity *ratings.EntityType, field *ratings.Field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.vote(w, r, entity, field)
	}
}

// handleVoteByField is the generic form of the voting endpoint, resolving
// the field from the path once the target is known to exist.
func (s *Server) handleVoteByField(w http.ResponseWriter, r *http.Request) {
	entity := s.registry.Comments
	if !s.resolveVoteTarget(w, r, entity) {
		return
	}
	field, err := entity.Field(chi.URLParam(r, "field"))
	if err != nil {
		s.respondVoteError(w, err)
		return
	}
	s.castVote(w, r, entity, field)
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request, entity *ratings.EntityType, field *ratings.Field) {
	if s.resolveVoteTarget(w, r, entity) {
		s.castVote(w, r, entity, field)
	}
}

// resolveVoteTarget rejects anything but POST and a {pk} that does not name
// an existing entity row. It reports whether the request may proceed.
func (s *Server) resolveVoteTarget(w http.ResponseWriter, r *http.Request, entity *ratings.EntityType) bool {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return false
	}
	if err := s.ratings.Resolve(r.Context(), entity, chi.URLParam(r, "pk")); err != nil {
		s.respondVoteError(w, err)
		return false
	}
	return true
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request, entity *ratings.EntityType, field *ratings.Field) {
	objectID := chi.URLParam(r, "pk")
	score, del, err := field.ParseScore(chi.URLParam(r, "score"))
	if err != nil {
		s.respondVoteError(w, err)
		return
	}

	ctx := r.Context()
	mgr := s.ratings.ManagerFor(entity, objectID, field)
	ballot := s.ballotFrom(r)

	var res ratings.Result
	if del {
		res, err = mgr.Delete(ctx, ballot)
	} else {
		res, err = mgr.Add(ctx, score, ballot)
	}
	if err != nil {
		s.respondVoteError(w, err)
		return
	}

	s.writeVoteCookie(w, res.Cookie)

	status, code, message := http.StatusOK, "VOTE_CHANGED", "Vote changed."
	if res.Created {
		status, code, message = http.StatusCreated, "VOTE_RECORDED", "Vote recorded."
	}
	s.respondJSON(w, status, voteResponse{
		Code:    code,
		Message: message,
		Votes:   res.Score.Votes,
		Score:   res.Score.Score,
		Average: roundToOneDecimal(res.Score.Average()),
		Rating:  res.Score.Rating,
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodPost)
	s.respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is accepted")
}

// respondVoteError maps rating errors onto the voting endpoint's statuses.
func (s *Server) respondVoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ratings.ErrNotChanged):
		w.WriteHeader(http.StatusNotModified)
	case errors.Is(err, ratings.ErrIPLimitReached):
		s.respondError(w, http.StatusBadRequest, "IP_LIMIT_REACHED", err.Error())
	case errors.Is(err, ratings.ErrAuthRequired):
		s.respondError(w, http.StatusForbidden, "AUTH_REQUIRED", err.Error())
	case errors.Is(err, ratings.ErrInvalidRating):
		s.respondError(w, http.StatusForbidden, "INVALID_RATING", err.Error())
	case errors.Is(err, ratings.ErrCannotChangeVote):
		s.respondError(w, http.StatusForbidden, "CANNOT_CHANGE_VOTE", err.Error())
	case errors.Is(err, ratings.ErrCannotDeleteVote):
		s.respondError(w, http.StatusForbidden, "CANNOT_DELETE_VOTE", err.Error())
	case errors.Is(err, ratings.ErrUnknownField):
		s.respondError(w, http.StatusForbidden, "INVALID_FIELD", "Invalid field name")
	case errors.Is(err, ratings.ErrTargetNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	default:
		s.logger.Printf("vote error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record vote")
	}
}
