// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的连接池、查询与行缓存指标采集能力。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册到调用方传入的 Registerer（为 nil 时使用默认 Registerer）。
所有指标按 namespace 隔离，按逻辑库名分组。

# 核心类型

  - Collector：指标收集器。nil *Collector 的全部 Record 方法均为空操作，
    未启用指标时调用方无需判空。

# 主要能力

  - 连接池指标：空闲/占用连接数 Gauge、获取连接等待耗时 Histogram、
    建连重试与健康检查丢弃计数。
  - 查询指标：语句执行耗时 Histogram（按 database/operation 分组）、
    失败语句计数、慢查询计数。
  - 缓存指标：行缓存命中与未命中计数，按 table 分组。
*/
package metrics
