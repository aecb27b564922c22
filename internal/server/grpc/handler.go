package grpc

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"google.golang.org/protobuf/types/known/structpb"
)

func str(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func reply(m map[string]any) (*structpb.Struct, error) {
	if m == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	return structpb.NewStruct(m)
}

func (s *GRPCServer) ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(map[string]any{"status": "ok"})
}

func (s *GRPCServer) signUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind := models.AccountKind(str(req, "kind"))
	if kind == "" {
		kind = models.KindIndividual
	}
	userID, err := s.users.SignUp(ctx, str(req, "username"), str(req, "email"), str(req, "password"), kind)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"user_id": userID})
}

func (s *GRPCServer) signIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.users.SignIn(ctx, str(req, "identifier"), str(req, "password"))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"token": token, "stage": "mfa_pending"})
}

func (s *GRPCServer) completeMFA(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token, err := s.users.CompleteMFA(ctx, ClaimsFromContext(ctx), str(req, "code"))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"token": token, "stage": "authenticated"})
}

func (s *GRPCServer) signOut(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.users.SignOut(ctx, ClaimsFromContext(ctx)); err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) signOutEverywhere(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.users.SignOutEverywhere(ctx, ClaimsFromContext(ctx)); err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) getAccount(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	v, err := s.users.GetAccount(ctx, ClaimsFromContext(ctx))
	if err != nil {
		return nil, err
	}

	progress := map[string]any{}
	if len(v.CourseProgress) > 0 {
		if err := json.Unmarshal(v.CourseProgress, &progress); err != nil {
			return nil, err
		}
	}

	return reply(map[string]any{
		"user_id":          v.UserID,
		"username":         v.Username,
		"email":            v.Email,
		"kind":             string(v.Kind),
		"institution_id":   v.InstitutionID,
		"institution_name": v.InstitutionName,
		"course_progress":  progress,
	})
}

func (s *GRPCServer) saveProgress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc := req.GetFields()["course_progress"].GetStructValue()
	if doc == nil {
		return nil, common.Policy(schema.FieldCourseProgress, "course progress must be a JSON object")
	}
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveProgress(ctx, ClaimsFromContext(ctx), raw); err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) changePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.users.ChangePassword(ctx, ClaimsFromContext(ctx), str(req, "old_password"), str(req, "new_password"))
	if err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) deleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.users.DeleteAccount(ctx, ClaimsFromContext(ctx), str(req, "password")); err != nil {
		return nil, err
	}
	return reply(nil)
}

func institutionReply(inst *models.Institution, withCode bool) (*structpb.Struct, error) {
	m := map[string]any{
		"institution_id": inst.InstitutionID,
		"name":           inst.Name,
	}
	if withCode {
		m["join_code"] = inst.JoinCode
	}
	return reply(m)
}

func (s *GRPCServer) createInstitution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	inst, err := s.institutions.CreateInstitution(ctx, ClaimsFromContext(ctx), str(req, "name"))
	if err != nil {
		return nil, err
	}
	return institutionReply(inst, true)
}

func (s *GRPCServer) joinInstitution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	inst, err := s.institutions.JoinInstitution(ctx, ClaimsFromContext(ctx), str(req, "join_code"))
	if err != nil {
		return nil, err
	}
	return institutionReply(inst, false)
}

func (s *GRPCServer) leaveInstitution(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.institutions.LeaveInstitution(ctx, ClaimsFromContext(ctx)); err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) deleteInstitution(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.institutions.DeleteInstitution(ctx, ClaimsFromContext(ctx)); err != nil {
		return nil, err
	}
	return reply(nil)
}

func (s *GRPCServer) checkIfPaidFor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c := ClaimsFromContext(ctx)
	if c == nil {
		return nil, common.ErrorUnauthorized
	}
	paid, err := s.payments.CheckIfPaidFor(ctx, c.UserID, str(req, "course_id"))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"paid": paid})
}

func (s *GRPCServer) startCheckout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	url, err := s.payments.StartCheckout(ctx, ClaimsFromContext(ctx), str(req, "course_id"), str(req, "success_url"), str(req, "cancel_url"))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"checkout_url": url})
}
