package catalogservice

import (
	"errors"
	"testing"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/apperr"
)

func TestQualifyAndDecodeKeys(t *testing.T) {
	short := []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAE="}
	q, err := QualifyKeys(short, true)
	if err != nil {
		t.Fatalf("QualifyKeys: %v", err)
	}
	if len(q) != 1 {
		t.Fatalf("got %d keys", len(q))
	}

	dec, err := DecodeKeys(q)
	if err != nil {
		t.Fatalf("DecodeKeys: %v", err)
	}
	if dec[0].ShortKey != short[0] || !dec[0].Logical || dec[0].Kind != "FamilyType" || dec[0].Flags != 0x01000000 {
		t.Errorf("decoded = %+v", dec[0])
	}
}

func TestKeysRejectMalformed(t *testing.T) {
	if _, err := QualifyKeys([]string{"!!"}, false); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := DecodeKeys([]string{"AAAA"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
