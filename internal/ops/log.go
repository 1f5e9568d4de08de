package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/adif"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/lotw"
	"github.com/w9en/qsolog/internal/qso"
)

// LogInput contains parameters for the Log operation.
type LogInput struct {
	Record    qso.Record // ID 0 selects the next identifier
	FromRadio bool       // fill blank freq, band and mode from the session radio
}

// UploadStatus reports one collaborator's answer for a saved contact.
type UploadStatus struct {
	Service string `json:"service"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	LogID   int64  `json:"log_id,omitempty"`
}

// LogOutput contains the result of the Log operation.
type LogOutput struct {
	ID      int64          `json:"id"`
	Route   logbook.Route  `json:"route"`
	Record  *qso.Record    `json:"record"`
	Uploads []UploadStatus `json:"uploads,omitempty"`
}

// Log saves an entry from the operator: identifiers beyond LastID create a
// contact, others replace the stored one. Once the write has committed the
// encoded record is pushed to the collaborators the session enables; their
// failures are reported in Uploads and never undo the save.
func Log(ctx context.Context, store *logbook.Store, sess *Session, input LogInput) (*LogOutput, error) {
	r := input.Record
	r.Normalize()

	if r.ID == 0 {
		last, err := store.LastID(ctx)
		if err != nil {
			return nil, err
		}
		r.ID = last + 1
	}

	if input.FromRadio {
		if err := fillFromRadio(ctx, store.Logger(), sess, &r); err != nil {
			return nil, err
		}
	}

	route, err := store.Route(ctx, &r)
	if err != nil {
		return nil, err
	}
	if route == logbook.RouteCreate && r.MyGrid == "" {
		r.MyGrid = store.StationGrid()
	}

	if route, err = store.Save(ctx, &r); err != nil {
		return nil, err
	}

	out := &LogOutput{ID: r.ID, Route: route, Record: &r}
	out.Uploads = pushUploads(ctx, store.Logger(), sess, adif.Encode(qso.ToADIF(&r)))

	store.Logger().Info("contact logged",
		zap.Int64("id", r.ID),
		zap.String("call", r.Callsign),
		zap.String("route", string(route)),
		zap.Int("uploads", len(out.Uploads)))
	return out, nil
}

func pushUploads(ctx context.Context, log *zap.Logger, sess *Session, text string) []UploadStatus {
	if sess == nil {
		return nil
	}

	var statuses []UploadStatus
	if sess.UploadQRZ {
		statuses = append(statuses, uploadQRZ(ctx, sess, text))
	}
	if sess.UploadLoTW {
		statuses = append(statuses, signLoTW(ctx, sess, text))
	}

	for _, s := range statuses {
		if !s.OK {
			log.Warn("upload failed", zap.String("service", s.Service), zap.String("message", s.Message))
		}
	}
	return statuses
}

func uploadQRZ(ctx context.Context, sess *Session, text string) UploadStatus {
	status := UploadStatus{Service: "qrz"}
	if sess.QRZ == nil {
		status.Message = "not connected"
		return status
	}

	res, err := sess.QRZ.Upload(ctx, text)
	switch {
	case err != nil:
		status.Message = err.Error()
	case !res.OK():
		status.Message = res.Status
		if res.Reason != "" {
			status.Message += ": " + res.Reason
		}
	default:
		status.OK = true
		status.LogID = res.LogID
		status.Message = "uploaded"
	}
	return status
}

func signLoTW(ctx context.Context, sess *Session, text string) UploadStatus {
	status := UploadStatus{Service: "lotw"}
	if sess.LoTW == nil {
		status.Message = "not connected"
		return status
	}

	policy := sess.Policy
	if policy == "" {
		policy = lotw.PolicyCompliant
	}
	res, err := sess.LoTW.Sign(ctx, text, policy)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	status.OK = res.Accepted
	status.Message = res.Message
	return status
}
