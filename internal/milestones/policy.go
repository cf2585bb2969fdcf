package milestones

import (
	"fmt"

	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
)

// AuthorizeResolution decides whether actor may move a milestone to action.
//
// Fitting approval belongs to the customer. Final approval may come from
// the customer or the tailor (delivery handover). Rejection is the
// customer's call. Admins may do anything a person can; only the system
// actor auto-approves.
func AuthorizeResolution(actor auth.Actor, order *models.Order, milestone enums.MilestoneType, action enums.ApprovalStatus) error {
	if action == enums.ApprovalStatusAutoApproved {
		if actor.Role != enums.ActorRoleSystem {
			return forbidden("only the system may auto-approve milestones")
		}
		return nil
	}
	if actor.Role == enums.ActorRoleSystem {
		return forbidden(fmt.Sprintf("system actor may not %s milestones", action))
	}
	if actor.IsAdmin() {
		return nil
	}

	switch action {
	case enums.ApprovalStatusRejected:
		if actor.IsCustomerOf(order) {
			return nil
		}
		return forbidden("only the customer may reject a milestone")
	case enums.ApprovalStatusApproved:
		if actor.IsCustomerOf(order) {
			return nil
		}
		if milestone.IsFinal() && actor.IsTailorOf(order) {
			return nil
		}
		if milestone.IsFitting() {
			return forbidden("only the customer may approve the fitting")
		}
		return forbidden("actor may not approve this milestone")
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", action))
	}
}

// AuthorizeSubmission allows the order's tailor (or an admin) to upload progress.
func AuthorizeSubmission(actor auth.Actor, order *models.Order) error {
	if actor.IsAdmin() || actor.IsTailorOf(order) {
		return nil
	}
	return forbidden("only the order's tailor may submit milestones")
}

func forbidden(msg string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, msg)
}
