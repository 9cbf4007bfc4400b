package service

import (
	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
)

// canReadSubmission is the single authorization predicate for attempt
// reads: the owner may always read, staff may read within their
// organization, everyone else is forbidden. Every read endpoint routes
// through here instead of re-deriving the three-way check.
func canReadSubmission(p model.Principal, s *model.Submission) error {
	if s.UserID == p.ID {
		return nil
	}
	if p.IsStaff() && p.SameOrg(s.OrgID) {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "you are not allowed to access this submission")
}

// requireOwner limits an operation to the attempt owner. Proctor events
// and attempt mutations are never performed on someone else's behalf.
func requireOwner(p model.Principal, s *model.Submission) error {
	if s.UserID != p.ID {
		return apperr.New(apperr.KindForbidden, "you are not allowed to access this submission")
	}
	return nil
}

// requireStaff limits an operation to teacher/admin callers.
func requireStaff(p model.Principal) error {
	if !p.IsStaff() {
		return apperr.New(apperr.KindForbidden, "teacher or admin role required")
	}
	return nil
}
