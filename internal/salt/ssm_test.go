package salt

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

type fakeSSM struct {
	value string
	err   error

	sawName       string
	sawDecryption bool
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.sawName = aws.ToString(in.Name)
	f.sawDecryption = aws.ToBool(in.WithDecryption)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String(f.value)},
	}, nil
}

func TestSSMProvider_HexValueDecoded(t *testing.T) {
	fake := &fakeSSM{value: "00112233445566778899aabbccddeeff"}
	p := SSMProvider{Client: fake, Param: "/privatebin/salt"}

	secret, err := p.Secret(context.Background())
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if len(secret) != 16 {
		t.Fatalf("decoded secret length = %d, want 16", len(secret))
	}
	if fake.sawName != "/privatebin/salt" {
		t.Fatalf("requested parameter = %q, want /privatebin/salt", fake.sawName)
	}
	if !fake.sawDecryption {
		t.Fatal("SecureString parameters require WithDecryption")
	}
}

func TestSSMProvider_NonHexValueUsedVerbatim(t *testing.T) {
	fake := &fakeSSM{value: "not-hex-but-still-a-secret"}
	p := SSMProvider{Client: fake, Param: "/privatebin/salt"}

	secret, err := p.Secret(context.Background())
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if string(secret) != "not-hex-but-still-a-secret" {
		t.Fatalf("secret = %q, want verbatim value", secret)
	}
}

func TestSSMProvider_EmptyValueErrors(t *testing.T) {
	fake := &fakeSSM{value: "   "}
	p := SSMProvider{Client: fake, Param: "/privatebin/salt"}

	if _, err := p.Secret(context.Background()); err == nil {
		t.Fatal("empty parameter value should error")
	}
}

func TestSSMProvider_APIErrorPropagates(t *testing.T) {
	fake := &fakeSSM{err: xerrors.New("access denied")}
	p := SSMProvider{Client: fake, Param: "/privatebin/salt"}

	if _, err := p.Secret(context.Background()); err == nil {
		t.Fatal("SSM failure should propagate")
	}
}
