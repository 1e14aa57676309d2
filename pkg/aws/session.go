// Package aws wraps the AWS services the exporter uses: STS for credential
// exchange, S3 as the artifact store and Secrets Manager for TLS material.
package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
)

// DefaultRoleSessionName is used for the assumed role session unless a run
// specific name is given.
const DefaultRoleSessionName = "kubecost-s3-exporter"

type SessionConfig struct {
	Region string
	// RoleARN is assumed for every call when set; otherwise the ambient
	// credentials are used.
	RoleARN         string
	RoleSessionName string
}

// NewSession returns a session for cfg, exchanging the ambient credentials
// for temporary ones of RoleARN when configured.
func NewSession(cfg SessionConfig) (*session.Session, error) {
	awsConfig := aws.NewConfig()
	if cfg.Region != "" {
		awsConfig = awsConfig.WithRegion(cfg.Region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("can't create AWS session: %v", err)
	}
	if cfg.RoleARN == "" {
		return sess, nil
	}
	sessionName := cfg.RoleSessionName
	if sessionName == "" {
		sessionName = DefaultRoleSessionName
	}
	creds := stscreds.NewCredentials(sess, cfg.RoleARN, func(p *stscreds.AssumeRoleProvider) {
		p.RoleSessionName = sessionName
	})
	return sess.Copy(&aws.Config{Credentials: creds}), nil
}
