package main

import (
	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/cat"
	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/lotw"
	"github.com/w9en/qsolog/internal/ops"
	"github.com/w9en/qsolog/internal/qrz"
	"github.com/w9en/qsolog/internal/secret"
)

// env is what every command runs against.
type env struct {
	store   *logbook.Store
	cfg     *config.Config
	sess    *ops.Session
	log     *zap.Logger
	closers []func() error
}

// close releases the collaborators opened for the session.
func (e *env) close() {
	for _, fn := range e.closers {
		if err := fn(); err != nil {
			e.log.Warn("closing session", zap.Error(err))
		}
	}
	e.closers = nil
}

// ensureRadio opens the configured radio if the session has none.
func (e *env) ensureRadio() error {
	if e.sess.Radio != nil {
		return nil
	}
	radio, err := openRadio(e.cfg, e.log)
	if err != nil {
		return err
	}
	e.sess.Radio = radio
	e.closers = append(e.closers, radio.Close)
	return nil
}

// connect builds the session cfg enables. Encrypted credentials are
// decrypted with the key under cfg.BaseDir. A radio that fails to open is
// logged and left disconnected.
func connect(cfg *config.Config, logger *zap.Logger) (*ops.Session, []func() error, error) {
	policy := cfg.LoTW.DuplicatePolicy
	if policy != "" && !lotw.ValidPolicy(policy) {
		return nil, nil, errors.NewInvalidRequest("unknown lotw duplicate_policy").WithDetail("duplicate_policy", policy)
	}

	sess := &ops.Session{
		UploadQRZ:  cfg.QRZ.Upload,
		UploadLoTW: cfg.LoTW.Upload,
		Policy:     policy,
	}
	var closers []func() error

	if cfg.QRZ.Username != "" || cfg.QRZ.APIKey != "" {
		password, err := secret.Reveal(cfg.BaseDir, cfg.QRZ.Password)
		if err != nil {
			return nil, nil, errors.NewInvalidRequest("qrz password: " + err.Error())
		}
		apiKey, err := secret.Reveal(cfg.BaseDir, cfg.QRZ.APIKey)
		if err != nil {
			return nil, nil, errors.NewInvalidRequest("qrz api_key: " + err.Error())
		}
		client := qrz.New(qrz.Options{
			Username:   cfg.QRZ.Username,
			Password:   password,
			APIKey:     apiKey,
			LookupURL:  cfg.QRZ.BaseURL,
			LogbookURL: cfg.QRZ.LogbookURL,
			Logger:     logger,
		})
		if cfg.QRZ.Username != "" {
			sess.Lookup = client
		}
		if apiKey != "" {
			sess.QRZ = client
		}
	}

	if cfg.LoTW.Location != "" {
		password, err := secret.Reveal(cfg.BaseDir, cfg.LoTW.CertPassword)
		if err != nil {
			return nil, nil, errors.NewInvalidRequest("lotw cert_password: " + err.Error())
		}
		sess.LoTW = lotw.New(lotw.Options{
			TQSLPath:     cfg.LoTW.TQSLPath,
			Location:     cfg.LoTW.Location,
			CertPassword: password,
			Logger:       logger,
		})
	}

	if cfg.CAT.ComPort != "" && cfg.CAT.AutoConnect {
		radio, err := openRadio(cfg, logger)
		if err != nil {
			logger.Warn("radio not connected", zap.String("device", cfg.CAT.ComPort), zap.Error(err))
		} else {
			sess.Radio = radio
			closers = append(closers, radio.Close)
		}
	}

	return sess, closers, nil
}

func openRadio(cfg *config.Config, logger *zap.Logger) (*cat.Radio, error) {
	return cat.Open(cfg.CAT.ComPort, cfg.CAT.Baudrate, cat.Commands{
		Freq: cfg.CAT.FreqCmd,
		Band: cfg.CAT.BandCmd,
		Mode: cfg.CAT.ModeCmd,
	}, logger)
}
