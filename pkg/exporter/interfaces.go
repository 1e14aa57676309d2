package exporter

import (
	"context"

	"github.com/kube-reporting/allocation-exporter/pkg/allocation"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

//go:generate mockgen -destination=mock/mock_exporter.go -package=mock github.com/kube-reporting/allocation-exporter/pkg/exporter PeriodPlanner,GapDetector,RecordFetcher,ArtifactWriter,PartitionRegistrar

type PeriodPlanner interface {
	Plan() (window.Window, []window.Period, error)
	SinglePeriod() window.Period
}

type GapDetector interface {
	DetectMissing(ctx context.Context, ent entity.Entity, w window.Window) ([]window.Period, error)
}

type RecordFetcher interface {
	FetchAllocations(ctx context.Context, p window.Period) ([]kubecost.Entry, error)
	FetchAssets(ctx context.Context, p window.Period) ([]kubecost.Entry, error)
}

type ArtifactWriter interface {
	Write(ctx context.Context, ent entity.Entity, p window.Period, table *allocation.Table) (string, error)
}

type PartitionRegistrar interface {
	RegisterPartition(ctx context.Context, ent entity.Entity, p window.Period) error
}
