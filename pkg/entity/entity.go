package entity

import (
	"regexp"
	"strings"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
)

var (
	clusterARNRegexp = regexp.MustCompile(`^arn:(?:aws|aws-cn|aws-us-gov):eks:(?:us(?:-gov)?|ap|ca|cn|eu|sa|me|af|il|mx)-(?:central|(?:north|south)?(?:east|west)?)-\d:\d{12}:cluster/[a-zA-Z0-9][a-zA-Z0-9_-]{1,99}$`)
	roleARNRegexp    = regexp.MustCompile(`^arn:(?:aws|aws-cn|aws-us-gov):iam::\d{12}:role/[a-zA-Z0-9+=,.@_-]{1,64}$`)
)

// Entity identifies the monitored cluster. It is parsed once from the
// cluster ARN and provides the coordinates used in every partition path.
type Entity struct {
	ID        string
	Partition string
	Region    string
	AccountID string
	Name      string
}

// Parse validates an EKS cluster ARN and splits it into its coordinates.
func Parse(clusterARN string) (Entity, error) {
	if !clusterARNRegexp.MatchString(clusterARN) {
		return Entity{}, exporterrors.Configuration("the cluster ID %q is not a valid EKS cluster ARN", clusterARN)
	}
	fields := strings.SplitN(clusterARN, ":", 6)
	return Entity{
		ID:        clusterARN,
		Partition: fields[1],
		Region:    fields[3],
		AccountID: fields[4],
		Name:      strings.TrimPrefix(fields[5], "cluster/"),
	}, nil
}

// ValidateRoleARN checks that roleARN looks like an IAM role ARN.
func ValidateRoleARN(roleARN string) error {
	if !roleARNRegexp.MatchString(roleARN) {
		return exporterrors.Configuration("%q is not a valid IAM role ARN", roleARN)
	}
	return nil
}

func (e Entity) String() string {
	return e.ID
}
