package downstream

import "testing"

func TestDecodeImmediateDownlink(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":923.4,"powe":14,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":4,"data":"3q2+7w=="}}`)

	req, err := Decode(body, 0xAB12)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !req.Immediate || req.FreqMHz != 923.4 || req.SF != 7 || req.BWHz != 125000 {
		t.Fatalf("got %+v", req)
	}
	if req.CodingRate != 5 || req.ServerToken != 0xAB12 {
		t.Fatalf("got %+v", req)
	}
	if len(req.Payload) != 4 || req.Payload[0] != 0xDE {
		t.Fatalf("got payload %x", req.Payload)
	}
}

func TestDecodeMissingTxpkFails(t *testing.T) {
	if _, err := Decode([]byte(`{}`), 0); err == nil {
		t.Fatal("expected an error for a missing txpk root")
	}
}

func TestDecodeBadBase64Fails(t *testing.T) {
	body := []byte(`{"txpk":{"freq":923.4,"datr":"SF7BW125","codr":"4/5","data":"not base64!!"}}`)
	if _, err := Decode(body, 0); err == nil {
		t.Fatal("expected an error for invalid base64 payload")
	}
}

func TestDecodeIsPure(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":923.4,"datr":"SF7BW125","codr":"4/5","data":"3q2+7w=="}}`)
	r1, err := Decode(body, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r2, err := Decode(body, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r1.FreqMHz != r2.FreqMHz || r1.SF != r2.SF {
		t.Fatalf("Decode is not deterministic: %+v vs %+v", r1, r2)
	}
}
