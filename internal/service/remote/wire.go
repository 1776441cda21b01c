// ABOUTME: Request and reply messages of the recgate.Service gRPC descriptor
// ABOUTME: Plain structs encoded by the grpcjson codec

package remote

import "github.com/2389/recgate/internal/service"

type emptyRequest struct{}

type estimateRequest struct {
	Param   service.RecommendParam `json:"param"`
	ItemIDs []int                  `json:"itemids"`
}

type recommendRequest struct {
	Param        service.RecommendParam `json:"param"`
	MaxRecommend int                    `json:"max_recommend"`
}

type ratingRequest struct {
	Rating *service.RatingVector `json:"rating"`
}

type idRequest struct {
	ID int `json:"id"`
}

type externalRequest struct {
	ExternalID string `json:"external_id"`
}

type profileRequest struct {
	Profile *service.Profile `json:"profile"`
}

type nominalKeyRequest struct {
	Attribute string `json:"attribute"`
	Index     int    `json:"index"`
}

type nominalRequest struct {
	Nominal *service.Nominal `json:"nominal"`
}

type accountRequest struct {
	Account    string `json:"account"`
	Password   string `json:"password"`
	Privileges int    `json:"privileges"`
}

// valueReply wraps every result so a nil pointer survives the round trip.
type valueReply[T any] struct {
	Value T `json:"value"`
}

func reply[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &valueReply[T]{Value: v}, nil
}
