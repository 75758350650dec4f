package api

import (
	"context"

	"github.com/absmach/hetsync/server"
	"github.com/go-kit/kit/endpoint"
)

func MakeRoundEndpoint(svc server.AdminService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		state, err := svc.Round(ctx)
		if err != nil {
			return nil, err
		}

		return roundRes{RoundState: state, ElapsedMS: state.Elapsed.Milliseconds(), TimeoutMS: state.RoundTimeout.Milliseconds()}, nil
	}
}

func MakeRoundsEndpoint(svc server.AdminService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(roundsReq)

		rounds, err := svc.Rounds(ctx, req.Limit)
		if err != nil {
			return nil, err
		}

		res := roundsRes{Total: len(rounds), Rounds: make([]roundView, 0, len(rounds))}
		for _, r := range rounds {
			res.Rounds = append(res.Rounds, roundView{RoundResult: r, DurationMS: r.Duration().Milliseconds()})
		}

		return res, nil
	}
}

func MakeWorkersEndpoint(svc server.AdminService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		workers, err := svc.Workers(ctx)
		if err != nil {
			return nil, err
		}

		return workersRes{Total: len(workers), Workers: workers}, nil
	}
}

func MakeModelEndpoint(svc server.AdminService) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		model, err := svc.Model(ctx)
		if err != nil {
			return nil, err
		}

		return modelRes{Model: model}, nil
	}
}
