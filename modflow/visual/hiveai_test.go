package visual

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const hiveRespJSON = `{"status":[{"response":{"output":[{"time":0,"classes":[
	{"class":"not_ai_generated","score":0.13},
	{"class":"ai_generated","score":0.87},
	{"class":"midjourney","score":0.6}
]}]}}]}`

func TestHiveSyntheticScore(t *testing.T) {
	assert := assert.New(t)

	resp := HiveAIResp{Status: []HiveAIResp_Status{{Response: HiveAIResp_Response{Output: []HiveAIResp_Out{
		{Classes: []HiveAIResp_Class{{Class: "ai_generated", Score: 0.2}}},
		{Classes: []HiveAIResp_Class{{Class: "ai_generated", Score: 0.4}, {Class: "not_ai_generated", Score: 0.6}}},
	}}}}}
	score, ok := resp.SyntheticScore()
	assert.True(ok)
	assert.Equal(0.4, score)

	_, ok = (&HiveAIResp{}).SyntheticScore()
	assert.False(ok)
}

func TestHiveClassify(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, _, err := r.FormFile("media")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(hiveRespJSON))
	}))
	defer srv.Close()

	hc := &HiveAIClient{Client: srv.Client(), ApiToken: "secret", URL: srv.URL}
	score, err := hc.Classify(context.Background(), []byte("jpeg bytes"))
	assert.NoError(err)
	assert.Equal(0.87, score)

	hc.ApiToken = "wrong"
	_, err = hc.Classify(context.Background(), []byte("jpeg bytes"))
	assert.Error(err)
}
