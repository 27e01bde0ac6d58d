package main

import (
	"zk-tax-system/internal/config"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
)

type ServiceConfigJson struct {
	LoggerConf     logger.LoggerConfigJson     `json:"logger"`
	RestConf       RestConfigJson              `json:"rest"`
	DatabaseConf   config.DatabaseConfigJson   `json:"database"`
	RabbitmqConf   rabbitmq.RabbimqConfigJson  `json:"rabbitmq"`
	DeploymentConf config.DeploymentConfigJson `json:"deployment"`
	ZkpConf        config.ZkpConfigJson        `json:"zkp"`
	ChainConf      config.ChainConfigJson      `json:"chain"`
	LifecycleConf  config.LifecycleConfigJson  `json:"lifecycle"`
}

func (scj ServiceConfigJson) ConvertToDomain() ServiceConfig {
	return ServiceConfig{
		LoggerConf:    scj.LoggerConf.ConvertToDomain(),
		RestConf:      scj.RestConf.ConvertToDomain(),
		DatabaseConf:  scj.DatabaseConf.ConvertToDomain(),
		RabbitmqConf:  scj.RabbitmqConf.ConvertToDomain(),
		Mode:          config.DeploymentMode(scj.DeploymentConf.Mode),
		ZkpConf:       scj.ZkpConf.ConvertToDomain(),
		ChainConf:     scj.ChainConf.ConvertToDomain(),
		LifecycleConf: scj.LifecycleConf.ConvertToDomain(),
	}
}

type ServiceConfig struct {
	LoggerConf    logger.LoggerConfig
	RestConf      RestConfig
	DatabaseConf  config.DatabaseConfig
	RabbitmqConf  rabbitmq.RabbitmqConfig
	Mode          config.DeploymentMode
	ZkpConf       config.ZkpConfig
	ChainConf     config.ChainConfig
	LifecycleConf config.LifecycleConfig
}

func (sc ServiceConfig) GetLoggerConfig() logger.LoggerConfig {
	return sc.LoggerConf
}

func (sc ServiceConfig) GetRabbitmqConfig() rabbitmq.RabbitmqConfig {
	return sc.RabbitmqConf
}

func (sc ServiceConfig) GetRestApiPort() uint16 {
	return sc.RestConf.Port
}

type RestConfigJson struct {
	Port uint16 `json:"port"`
}

type RestConfig struct {
	Port uint16
}

func (rcj RestConfigJson) ConvertToDomain() RestConfig {
	port := rcj.Port
	if port == 0 {
		port = 9000
	}
	return RestConfig{Port: port}
}
