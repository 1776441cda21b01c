// ABOUTME: Dispatch table mapping each protocol action to one Service call
// ABOUTME: Built once at init; handlers turn results into response envelopes

package delegator

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/recgate/internal/protocol"
	"github.com/2389/recgate/internal/service"
)

var errMissingPayload = errors.New("request payload missing")

type handler func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error)

var handlers = map[protocol.Action]handler{
	protocol.ActionEstimate: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRating(req)(svc.Estimate(ctx, req.RecommendParam(), req.ItemIDs))
	},
	protocol.ActionRecommend: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRating(req)(svc.Recommend(ctx, req.RecommendParam(), req.MaxRecommend))
	},
	protocol.ActionUpdateRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		if req.Rating == nil {
			return nil, errMissingPayload
		}
		return withOK(req)(svc.UpdateRating(ctx, req.Rating))
	},
	protocol.ActionDeleteRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		if req.Rating == nil {
			return nil, errMissingPayload
		}
		return withOK(req)(svc.DeleteRating(ctx, req.Rating))
	},

	protocol.ActionGetUserIDs: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withIDs(req)(svc.GetUserIDs(ctx))
	},
	protocol.ActionGetUserRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRating(req)(svc.GetUserRating(ctx, req.UserID))
	},
	protocol.ActionDeleteUserRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.DeleteUserRating(ctx, req.UserID))
	},
	protocol.ActionGetUserProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withProfile(req)(svc.GetUserProfile(ctx, req.UserID))
	},
	protocol.ActionGetUserProfileByExternalID: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withProfile(req)(svc.GetUserProfileByExternal(ctx, req.ExternalID))
	},
	protocol.ActionUpdateUserProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		if req.Profile == nil {
			return nil, errMissingPayload
		}
		return withOK(req)(svc.UpdateUserProfile(ctx, req.Profile))
	},
	protocol.ActionDeleteUserProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.DeleteUserProfile(ctx, req.UserID))
	},
	protocol.ActionGetUserExternalRecord: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRecord(req)(svc.GetUserExternalRecord(ctx, req.UserID))
	},

	protocol.ActionGetItemIDs: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withIDs(req)(svc.GetItemIDs(ctx))
	},
	protocol.ActionGetItemRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRating(req)(svc.GetItemRating(ctx, req.ItemID))
	},
	protocol.ActionDeleteItemRating: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.DeleteItemRating(ctx, req.ItemID))
	},
	protocol.ActionGetItemProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withProfile(req)(svc.GetItemProfile(ctx, req.ItemID))
	},
	protocol.ActionGetItemProfileByExternalID: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withProfile(req)(svc.GetItemProfileByExternal(ctx, req.ExternalID))
	},
	protocol.ActionUpdateItemProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		if req.Profile == nil {
			return nil, errMissingPayload
		}
		return withOK(req)(svc.UpdateItemProfile(ctx, req.Profile))
	},
	protocol.ActionDeleteItemProfile: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.DeleteItemProfile(ctx, req.ItemID))
	},
	protocol.ActionGetItemExternalRecord: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withRecord(req)(svc.GetItemExternalRecord(ctx, req.ItemID))
	},

	protocol.ActionGetNominal: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		n, err := svc.GetNominal(ctx, req.Attribute, req.Index)
		if err != nil {
			return nil, err
		}
		resp := protocol.NewResponse(req)
		resp.Nominal = n
		return resp, nil
	},
	protocol.ActionUpdateNominal: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		if req.Nominal == nil {
			return nil, errMissingPayload
		}
		return withOK(req)(svc.UpdateNominal(ctx, req.Nominal))
	},
	protocol.ActionDeleteNominal: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.DeleteNominal(ctx, req.Attribute, req.Index))
	},

	protocol.ActionValidateAccount: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		return withOK(req)(svc.ValidateAccount(ctx, req.AccountName, req.AccountPassword, int(req.AccountPrivileges)))
	},
	protocol.ActionGetStatus: func(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
		st, err := svc.Status(ctx)
		if err != nil {
			return nil, err
		}
		resp := protocol.NewResponse(req)
		resp.Status = st
		return resp, nil
	},
}

// dispatch runs the handler for req against svc. A panicking handler is
// reported as an error.
func dispatch(ctx context.Context, svc service.Service, req *protocol.Request) (resp *protocol.Response, err error) {
	h, ok := handlers[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownAction, req.Action)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", req.Action, p)
		}
	}()
	return h(ctx, svc, req)
}

func withIDs(req *protocol.Request) func([]int, error) (*protocol.Response, error) {
	return func(ids []int, err error) (*protocol.Response, error) {
		if err != nil {
			return nil, err
		}
		resp := protocol.NewResponse(req)
		resp.IDs = ids
		if resp.IDs == nil {
			resp.IDs = []int{}
		}
		return resp, nil
	}
}

func withRating(req *protocol.Request) func(*service.RatingVector, error) (*protocol.Response, error) {
	return func(v *service.RatingVector, err error) (*protocol.Response, error) {
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, service.ErrNotFound
		}
		resp := protocol.NewResponse(req)
		resp.Rating = v
		return resp, nil
	}
}

func withProfile(req *protocol.Request) func(*service.Profile, error) (*protocol.Response, error) {
	return func(p *service.Profile, err error) (*protocol.Response, error) {
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, service.ErrNotFound
		}
		resp := protocol.NewResponse(req)
		resp.Profile = p
		return resp, nil
	}
}

func withRecord(req *protocol.Request) func(*service.ExternalRecord, error) (*protocol.Response, error) {
	return func(r *service.ExternalRecord, err error) (*protocol.Response, error) {
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, service.ErrNotFound
		}
		resp := protocol.NewResponse(req)
		resp.ExternalRecord = r
		return resp, nil
	}
}

func withOK(req *protocol.Request) func(bool, error) (*protocol.Response, error) {
	return func(ok bool, err error) (*protocol.Response, error) {
		if err != nil {
			return nil, err
		}
		return protocol.NewResponse(req).WithOK(ok), nil
	}
}
