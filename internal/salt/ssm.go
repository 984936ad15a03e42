package salt

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// SSMAPI is the subset of the SSM client the provider uses, for test fakes.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider fetches the salt from a SecureString parameter, for fleets
// where every instance must digest identities under the same secret without
// sharing a filesystem.
type SSMProvider struct {
	Client SSMAPI
	Param  string
}

func (p SSMProvider) Secret(ctx context.Context) ([]byte, error) {
	out, err := p.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get ssm parameter %s", p.Param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("ssm parameter %s has no value", p.Param)
	}

	val := strings.TrimSpace(*out.Parameter.Value)
	if val == "" {
		return nil, xerrors.Newf("ssm parameter %s is empty", p.Param)
	}

	// hex-encoded salts decode to raw bytes; anything else is used verbatim
	if secret, err := hex.DecodeString(val); err == nil {
		return secret, nil
	}
	return []byte(val), nil
}
