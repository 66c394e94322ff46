// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
包 server 提供运维 HTTP 服务：生命周期管理、Prometheus 指标、
健康检查与连接池状态查询。

# 概述

Manager 封装 net/http.Server，负责非阻塞启动、优雅关闭与
SIGINT/SIGTERM 信号监听。NewMux 注册运维端点，HealthHandler
聚合各逻辑库与 Redis 的健康检查。

# 端点

  - GET /metrics：promhttp 输出指定 Gatherer 的指标。
  - GET /healthz：存活探针，始终返回 200。
  - GET /health：执行全部检查，任一失败返回 503。
  - GET /debug/pools：按声明顺序返回各逻辑库的连接池快照。
*/
package server
